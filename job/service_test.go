package job

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediaforge/encoder"
	"mediaforge/media"
	"mediaforge/models"
	"mediaforge/taskqueue"
	"mediaforge/taskstatus"
	"mediaforge/volumes"
)

type fixture struct {
	svc    *Service
	media  *media.Store
	status *taskstatus.MemoryStore
	dir    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	store, err := media.Open(filepath.Join(dir, "media.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	selector, err := volumes.NewSelector(map[string]string{"file": "filesystem"}, volumes.Deps{TempRoot: dir})
	require.NoError(t, err)

	status := taskstatus.NewMemoryStore(0)
	pool := taskqueue.NewPool(1, 4)
	env := encoder.Env{Selector: selector, Status: status, Media: store, Pool: pool, TempDir: dir}
	encoders, err := encoder.NewRegistry([]string{"copy"}, "copy", env, encoder.Options{})
	require.NoError(t, err)

	return &fixture{
		svc:    NewService(store, encoders, selector, status, pool),
		media:  store,
		status: status,
		dir:    dir,
	}
}

func (f *fixture) locator(t *testing.T, name string, content string) string {
	t.Helper()
	p := filepath.Join(f.dir, name)
	if content != "" {
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return "file://" + filepath.ToSlash(p)
}

func TestSubmit_RegistersInputAndLinksOutput(t *testing.T) {
	f := newFixture(t)
	req := models.TranscodeRequest{
		Input:     f.locator(t, "in.mp4", "frames"),
		Output:    f.locator(t, "out.mp4", ""),
		MediaType: "video/mp4",
	}

	sub, err := f.svc.Submit(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, sub.Task)

	res, done := sub.Task.Result()
	require.True(t, done)
	assert.Equal(t, models.StatusReady, res.Status)

	out, err := f.media.Get(sub.Output.URN)
	require.NoError(t, err)
	assert.Equal(t, sub.Input.URN, out.Parent)
	assert.Equal(t, models.StatusReady, out.Status)

	in, err := f.media.Get(sub.Input.URN)
	require.NoError(t, err)
	assert.Equal(t, req.Input, in.PrivateLocator)

	status, ok, err := f.svc.Status(context.Background(), sub.Task.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, models.FinalTaskStatus, status)
}

func TestSubmit_ExistingInputByURN(t *testing.T) {
	f := newFixture(t)
	in := models.NewMediaRecord(f.locator(t, "source.mp4", "frames"), "video/mp4", models.StatusReady)
	require.NoError(t, f.media.Save(in))

	sub, err := f.svc.Submit(context.Background(), models.TranscodeRequest{
		Input:  in.URN,
		Output: f.locator(t, "copy.mp4", ""),
	})
	require.NoError(t, err)
	assert.Equal(t, in.URN, sub.Output.Parent)
	assert.Equal(t, "video/mp4", sub.Output.MediaType)

	children, err := f.media.Children(in.URN)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, sub.Output.URN, children[0].URN)
}

func TestSubmit_Errors(t *testing.T) {
	f := newFixture(t)
	input := f.locator(t, "in.mp4", "frames")

	_, err := f.svc.Submit(context.Background(), models.TranscodeRequest{Input: input})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = f.svc.Submit(context.Background(), models.TranscodeRequest{Input: "urn:uuid:missing", Output: input + ".out"})
	assert.ErrorIs(t, err, media.ErrNotFound)

	_, err = f.svc.Submit(context.Background(), models.TranscodeRequest{Input: input, Output: "gopher://host/out.mp4"})
	var unsupported *volumes.UnsupportedSchemeError
	assert.ErrorAs(t, err, &unsupported)

	_, err = f.svc.Submit(context.Background(), models.TranscodeRequest{Input: input, Output: input + ".out", Encoder: "ffmpeg"})
	var unknown *encoder.UnknownEncoderError
	assert.ErrorAs(t, err, &unknown)
}

func TestSubmit_CopyFailureMarksOutputFailed(t *testing.T) {
	f := newFixture(t)

	sub, err := f.svc.Submit(context.Background(), models.TranscodeRequest{
		Input:  f.locator(t, "absent.mp4", ""),
		Output: f.locator(t, "absent-out.mp4", ""),
	})
	require.NoError(t, err)

	out, err := f.media.Get(sub.Output.URN)
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, out.Status)
}

func TestCancel_UnknownTask(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.Cancel("task_copy_nope"), taskqueue.ErrJobNotFound)
}

func TestStats(t *testing.T) {
	f := newFixture(t)
	running, queued := f.svc.Stats()
	assert.Equal(t, 0, running)
	assert.Equal(t, 0, queued)

	running, queued = (&Service{}).Stats()
	assert.Equal(t, 0, running)
	assert.Equal(t, 0, queued)
}

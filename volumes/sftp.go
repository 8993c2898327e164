package volumes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"mediaforge/credentials"
	"mediaforge/locator"
	"mediaforge/logger"
)

// SFTPDriver addresses files as sftp://[user[:password]@]host[:port]/path.
// Authentication comes from locator userinfo or the credential stored for
// ("sftp", host:port) with "username" and "password" or "privateKey"
// (base64 or raw PEM). An optional "hostKey" in authorized_keys format pins
// the server key.
type SFTPDriver struct {
	base
	creds   credentials.Lookup
	timeout time.Duration
}

// NewSFTPDriver returns an SFTP driver for scheme.
func NewSFTPDriver(scheme string, creds credentials.Lookup, timeout time.Duration) *SFTPDriver {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SFTPDriver{base: base{scheme: scheme}, creds: creds, timeout: timeout}
}

type sftpSession struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (s *sftpSession) Close() error {
	err := s.sftp.Close()
	s.ssh.Close()
	return err
}

func (d *SFTPDriver) clientConfig(loc locator.Locator) (*ssh.ClientConfig, error) {
	var user, password, privateKey, hostKey string
	if u := loc.Credentials(); u != nil {
		user = u.Username()
		password, _ = u.Password()
	}
	if password == "" && d.creds != nil {
		cred, found, err := d.creds.Lookup(d.scheme, d.Netloc(loc))
		if err != nil {
			return nil, fmt.Errorf("looking up credential for %s: %w", d.Netloc(loc), err)
		}
		if found {
			if user == "" {
				user = cred.Get("username")
			}
			password, privateKey, hostKey = cred.Get("password"), cred.Get("privateKey"), cred.Get("hostKey")
		}
	}
	if user == "" {
		return nil, &AuthenticationConfigurationError{Origin: d.Netloc(loc), Scheme: d.scheme, Reason: "no user"}
	}

	var auths []ssh.AuthMethod
	if privateKey != "" {
		signer, err := ssh.ParsePrivateKey(decodeKey(privateKey))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		auths = append(auths, ssh.PublicKeys(signer))
	} else if password != "" {
		auths = append(auths, ssh.Password(password))
	} else {
		return nil, &AuthenticationConfigurationError{Origin: d.Netloc(loc), Scheme: d.scheme, Reason: "set password or privateKey"}
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if hostKey != "" {
		pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(hostKey))
		if err != nil {
			return nil, fmt.Errorf("parse host key: %w", err)
		}
		hostKeyCallback = ssh.FixedHostKey(pub)
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            auths,
		HostKeyCallback: hostKeyCallback,
		Timeout:         d.timeout,
	}, nil
}

// Netloc returns host:port, defaulting the port to 22.
func (d *SFTPDriver) Netloc(loc locator.Locator) string {
	host := loc.Origin()
	if _, _, err := net.SplitHostPort(host); err != nil {
		return net.JoinHostPort(host, "22")
	}
	return host
}

func (d *SFTPDriver) connect(ctx context.Context, loc locator.Locator) (*sftpSession, error) {
	config, err := d.clientConfig(loc)
	if err != nil {
		return nil, err
	}
	addr := d.Netloc(loc)

	dialer := net.Dialer{Timeout: d.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", addr, err)
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	sshClient := ssh.NewClient(clientConn, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, fmt.Errorf("create sftp client: %w", err)
	}
	return &sftpSession{ssh: sshClient, sftp: sftpClient}, nil
}

func remotePath(loc locator.Locator) string {
	if loc.Path == "" {
		return "/"
	}
	return loc.Path
}

type sftpReader struct {
	*sftp.File
	session *sftpSession
}

func (r sftpReader) Close() error {
	err := r.File.Close()
	r.session.Close()
	return err
}

// Open implements Driver.
func (d *SFTPDriver) Open(ctx context.Context, loc locator.Locator) (io.ReadCloser, error) {
	session, err := d.connect(ctx, loc)
	if err != nil {
		return nil, err
	}
	f, err := session.sftp.Open(remotePath(loc))
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("open remote file %s: %w", remotePath(loc), err)
	}
	return sftpReader{File: f, session: session}, nil
}

// Save writes to a hidden sibling and renames it over the target.
func (d *SFTPDriver) Save(ctx context.Context, loc locator.Locator, r io.Reader) error {
	session, err := d.connect(ctx, loc)
	if err != nil {
		return err
	}
	defer session.Close()

	target := remotePath(loc)
	dir := path.Dir(target)
	if err := mkdirAllSFTP(session.sftp, dir); err != nil {
		return fmt.Errorf("ensure remote dir %s: %w", dir, err)
	}

	tmp := path.Join(dir, "."+path.Base(target)+"."+uuid.NewString()+".tmp")
	f, err := session.sftp.Create(tmp)
	if err != nil {
		return fmt.Errorf("create remote file %s: %w", tmp, err)
	}
	if _, err := io.Copy(f, contextReader{ctx: ctx, r: r}); err != nil {
		f.Close()
		session.sftp.Remove(tmp)
		return fmt.Errorf("copy to remote file %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		session.sftp.Remove(tmp)
		return fmt.Errorf("close remote file %s: %w", tmp, err)
	}
	if err := session.sftp.PosixRename(tmp, target); err != nil {
		session.sftp.Remove(tmp)
		return fmt.Errorf("rename %s to %s: %w", tmp, target, err)
	}

	logger.Infof("Successfully uploaded '%s' to %s", target, d.Netloc(loc))
	return nil
}

// Delete implements Driver.
func (d *SFTPDriver) Delete(ctx context.Context, loc locator.Locator) error {
	session, err := d.connect(ctx, loc)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.sftp.Remove(remotePath(loc)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", remotePath(loc), err)
	}
	return nil
}

// Exists implements Driver.
func (d *SFTPDriver) Exists(ctx context.Context, loc locator.Locator) (bool, error) {
	session, err := d.connect(ctx, loc)
	if err != nil {
		return false, err
	}
	defer session.Close()

	_, err = session.sftp.Stat(remotePath(loc))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", remotePath(loc), err)
	}
	return true, nil
}

// ListDir implements Driver.
func (d *SFTPDriver) ListDir(ctx context.Context, loc locator.Locator) ([]string, []string, error) {
	session, err := d.connect(ctx, loc)
	if err != nil {
		return nil, nil, err
	}
	defer session.Close()

	entries, err := session.sftp.ReadDir(remotePath(loc))
	if err != nil {
		return nil, nil, fmt.Errorf("read dir %s: %w", remotePath(loc), err)
	}
	var dirs, files []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		} else {
			files = append(files, e.Name())
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)
	return dirs, files, nil
}

// mkdirAllSFTP mimics os.MkdirAll for an SFTP server by creating each segment of the path.
func mkdirAllSFTP(client *sftp.Client, dir string) error {
	if dir == "" || dir == "." || dir == "/" {
		return nil
	}

	parts := strings.Split(dir, "/")
	cur := ""
	if strings.HasPrefix(dir, "/") {
		cur = "/"
	}

	for _, p := range parts {
		if p == "" {
			continue
		}
		cur = path.Join(cur, p)
		if _, err := client.Stat(cur); err != nil {
			if os.IsNotExist(err) {
				if err := client.Mkdir(cur); err != nil {
					return fmt.Errorf("mkdir %s: %w", cur, err)
				}
			} else {
				return fmt.Errorf("stat %s: %w", cur, err)
			}
		}
	}
	return nil
}

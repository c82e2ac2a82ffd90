package ingest

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/url"

	"github.com/jlaffaye/ftp"
)

const defaultFTPPort = "21"

func (f *Fetcher) fetchFTP(ctx context.Context, u *url.URL) ([]byte, error) {
	if u.Path == "" || u.Path == "/" {
		return nil, fmt.Errorf("ftp url has no file path")
	}

	conn, err := ftp.Dial(ftpAddress(u), ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	defer conn.Quit()

	user, pass := ftpCredentials(u)
	if err := conn.Login(user, pass); err != nil {
		return nil, fmt.Errorf("ftp login: %w", err)
	}

	resp, err := conn.Retr(u.Path)
	if err != nil {
		return nil, fmt.Errorf("ftp retr: %w", err)
	}
	defer resp.Close()

	body, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

func ftpAddress(u *url.URL) string {
	port := u.Port()
	if port == "" {
		port = defaultFTPPort
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// ftpCredentials uses the URL's user info, falling back to anonymous login.
func ftpCredentials(u *url.URL) (string, string) {
	if u.User == nil || u.User.Username() == "" {
		return "anonymous", "anonymous"
	}
	pass, _ := u.User.Password()
	return u.User.Username(), pass
}

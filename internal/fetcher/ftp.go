package fetcher

import (
	"context"
	"io"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// FTPOptions configures the FTP fetcher.
type FTPOptions struct {
	Timeout time.Duration
}

// FTPFetcher retrieves files from anonymous FTP mirrors. Some agency bulk files
// (older GHGRP and census extracts) are still only published that way.
type FTPFetcher struct {
	opts FTPOptions
}

// NewFTPFetcher creates a new FTPFetcher with the given options.
func NewFTPFetcher(opts FTPOptions) *FTPFetcher {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	return &FTPFetcher{opts: opts}
}

// splitFTPURL returns host:port, the remote path and the login for an ftp:// URL.
// Without userinfo the login is anonymous.
func splitFTPURL(rawURL string) (host, path, user, pass string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", "", "", eris.Wrap(err, "ftp: parse url")
	}
	if u.Scheme != "ftp" {
		return "", "", "", "", eris.Errorf("ftp: expected ftp scheme, got %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		return "", "", "", "", eris.Errorf("ftp: no file path in %s", rawURL)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	user, pass = "anonymous", "anonymous@"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	return host, u.Path, user, pass, nil
}

// ftpBody closes the transfer and the control connection together.
type ftpBody struct {
	resp *ftp.Response
	conn *ftp.ServerConn
}

func (b *ftpBody) Read(p []byte) (int, error) { return b.resp.Read(p) }

func (b *ftpBody) Close() error {
	respErr := b.resp.Close()
	quitErr := b.conn.Quit()
	if respErr != nil {
		return eris.Wrap(respErr, "ftp: close transfer")
	}
	return eris.Wrap(quitErr, "ftp: quit")
}

// Download retrieves the file. Closing the returned reader releases the connection.
func (f *FTPFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	host, path, user, pass, err := splitFTPURL(rawURL)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", path))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, eris.Wrapf(err, "ftp: dial %s", host)
	}
	if err := conn.Login(user, pass); err != nil {
		_ = conn.Quit()
		return nil, eris.Wrap(err, "ftp: login")
	}
	resp, err := conn.Retr(path)
	if err != nil {
		_ = conn.Quit()
		return nil, eris.Wrapf(err, "ftp: retrieve %s", path)
	}
	return &ftpBody{resp: resp, conn: conn}, nil
}

// DownloadToFile retrieves the file into path, creating parent directories.
func (f *FTPFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return 0, err
	}
	defer body.Close() //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, eris.Wrap(err, "ftp: create parent directory")
	}
	out, err := os.Create(path)
	if err != nil {
		return 0, eris.Wrap(err, "ftp: create file")
	}
	n, err := io.Copy(out, body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return n, eris.Wrap(err, "ftp: write file")
	}
	return n, nil
}

// SchemeFetcher routes ftp:// URLs to an FTP fetcher and everything else to HTTP.
type SchemeFetcher struct {
	HTTP Fetcher
	FTP  Fetcher
}

func (s *SchemeFetcher) pick(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrap(err, "fetcher: parse url")
	}
	switch u.Scheme {
	case "ftp":
		if s.FTP == nil {
			return nil, eris.Errorf("fetcher: no ftp fetcher for %s", rawURL)
		}
		return s.FTP, nil
	case "http", "https":
		if s.HTTP == nil {
			return nil, eris.Errorf("fetcher: no http fetcher for %s", rawURL)
		}
		return s.HTTP, nil
	default:
		return nil, eris.Errorf("fetcher: unsupported scheme %q", u.Scheme)
	}
}

// Download dispatches on the URL scheme.
func (s *SchemeFetcher) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	f, err := s.pick(rawURL)
	if err != nil {
		return nil, err
	}
	return f.Download(ctx, rawURL)
}

// DownloadToFile dispatches on the URL scheme.
func (s *SchemeFetcher) DownloadToFile(ctx context.Context, rawURL string, path string) (int64, error) {
	f, err := s.pick(rawURL)
	if err != nil {
		return 0, err
	}
	return f.DownloadToFile(ctx, rawURL, path)
}

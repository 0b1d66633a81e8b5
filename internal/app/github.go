package app

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	gh "github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
)

const githubAPI = "https://api.github.com"

// appJWT signs the short-lived token identifying the GitHub App.
func appJWT(appID int64, key *rsa.PrivateKey, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    strconv.FormatInt(appID, 10),
		IssuedAt:  jwt.NewNumericDate(now.Add(-time.Minute)),
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}

// installationClient returns a client and token acting as the app's
// installation on owner/repo.
func (s *Server) installationClient(ctx context.Context, owner, repo string) (*gh.Client, string, error) {
	key, err := parsePrivateKey([]byte(s.cfg.PrivateKeyPEM))
	if err != nil {
		return nil, "", err
	}
	signed, err := appJWT(s.cfg.AppID, key, time.Now().UTC())
	if err != nil {
		return nil, "", fmt.Errorf("sign app jwt: %w", err)
	}

	appTS := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: signed, TokenType: "Bearer"})
	appClient := gh.NewClient(oauth2.NewClient(ctx, appTS))

	inst, _, err := appClient.Apps.FindRepositoryInstallation(ctx, owner, repo)
	if err != nil {
		return nil, "", fmt.Errorf("find installation: %w", err)
	}
	tok, _, err := appClient.Apps.CreateInstallationToken(ctx, inst.GetID(), &gh.InstallationTokenOptions{})
	if err != nil {
		return nil, "", fmt.Errorf("create installation token: %w", err)
	}

	instTS := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok.GetToken()})
	return gh.NewClient(oauth2.NewClient(ctx, instTS)), tok.GetToken(), nil
}

func parsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("pem decode failed")
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err == nil {
		return key, nil
	}
	k2, err2 := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err2 != nil {
		return nil, err
	}
	rk, ok := k2.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("not rsa key")
	}
	return rk, nil
}

func downloadTarball(ctx context.Context, token, owner, repo, ref, dest string) error {
	url := fmt.Sprintf("%s/repos/%s/%s/tarball/%s", githubAPI, owner, repo, ref)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "token "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	httpClient := &http.Client{Timeout: 2 * time.Minute}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("tarball download status: %s", resp.Status)
	}
	return extractTarball(resp.Body, dest)
}

// extractTarball unpacks a gzipped tar stream into dest. Entries that
// would land outside dest are rejected.
func extractTarball(r io.Reader, dest string) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return err
	}
	defer gz.Close()
	root := filepath.Clean(dest) + string(os.PathSeparator)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		target := filepath.Join(dest, hdr.Name)
		if !strings.HasPrefix(target+string(os.PathSeparator), root) {
			return fmt.Errorf("tar entry %q escapes destination", hdr.Name)
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(target, tr); err != nil {
				return err
			}
		}
	}
}

func writeFile(path string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// GoFile uploads artifacts to the gofile.io object store and returns
// the public download page. Used as the fallback when an artifact is
// too large for chat delivery.
type GoFile struct {
	client    *http.Client
	apiBase   string
	uploadTpl string
	token     string
	logger    *zap.Logger
}

func NewGoFile(apiBase, token string, logger *zap.Logger) *GoFile {
	if apiBase == "" {
		apiBase = "https://api.gofile.io"
	}
	return &GoFile{
		client:    &http.Client{Timeout: 30 * time.Minute},
		apiBase:   apiBase,
		uploadTpl: "https://%s.gofile.io/uploadFile",
		token:     token,
		logger:    logger,
	}
}

func (g *GoFile) Deliver(ctx context.Context, a Artifact) (Receipt, error) {
	server, err := g.pickServer(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("pick upload server: %w", err)
	}

	page, err := g.upload(ctx, server, a.Path)
	if err != nil {
		return Receipt{}, err
	}

	g.logger.Info("Uploaded artifact",
		zap.String("task_id", a.ID),
		zap.String("server", server),
		zap.String("page", page))
	return Receipt{Backend: "gofile", Location: page}, nil
}

type serversResponse struct {
	Status string `json:"status"`
	Data   struct {
		Servers []struct {
			Name string `json:"name"`
		} `json:"servers"`
	} `json:"data"`
}

func (g *GoFile) pickServer(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.apiBase+"/servers", nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var out serversResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Status != "ok" || len(out.Data.Servers) == 0 {
		return "", fmt.Errorf("no upload servers available")
	}
	return out.Data.Servers[0].Name, nil
}

type uploadResponse struct {
	Status string `json:"status"`
	Data   struct {
		DownloadPage string `json:"downloadPage"`
	} `json:"data"`
}

func (g *GoFile) upload(ctx context.Context, server, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		var err error
		defer func() { pw.CloseWithError(err) }()
		if g.token != "" {
			if err = mw.WriteField("token", g.token); err != nil {
				return
			}
		}
		var part io.Writer
		if part, err = mw.CreateFormFile("file", filepath.Base(path)); err != nil {
			return
		}
		if _, err = io.Copy(part, f); err != nil {
			return
		}
		err = mw.Close()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf(g.uploadTpl, server), pr)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload: unexpected status %d", resp.StatusCode)
	}

	var out uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if out.Status != "ok" || out.Data.DownloadPage == "" {
		return "", fmt.Errorf("upload rejected: status %q", out.Status)
	}
	return out.Data.DownloadPage, nil
}

package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"clipflow/internal/domain"
	"clipflow/internal/store"
)

// UploadRequest carries the metadata for one video upload.
type UploadRequest struct {
	VideoPath   string
	Title       string
	Description string
}

// Uploader is the platform upload API. Implemented for YouTube; faked in
// tests.
type Uploader interface {
	Upload(ctx context.Context, accessToken string, req UploadRequest) (videoID, url string, err error)
	SetThumbnail(ctx context.Context, accessToken, videoID, thumbnailPath string) error
}

// TokenRefresher exchanges a stored refresh token for a fresh access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (accessToken string, err error)
}

// Result is returned on a successful publish.
type Result struct {
	VideoID string
	URL     string
}

// Publisher pushes one job's video to the external platform and records the
// published fact. It holds no cross-call state.
type Publisher struct {
	creds     store.CredentialStore
	published store.PublishedStore
	uploader  Uploader
	tokens    TokenRefresher
	postedDir string
	inboxDir  string
}

func New(creds store.CredentialStore, published store.PublishedStore, uploader Uploader, tokens TokenRefresher, postedDir, inboxDir string) *Publisher {
	return &Publisher{
		creds:     creds,
		published: published,
		uploader:  uploader,
		tokens:    tokens,
		postedDir: postedDir,
		inboxDir:  inboxDir,
	}
}

// Publish uploads the video and, best-effort, its thumbnail. Credential and
// file preconditions fail fast before any network call.
func (p *Publisher) Publish(ctx context.Context, ownerID, videoPath, title, description string, thumbnailPath *string) (Result, error) {
	cred, err := p.creds.FindByOwner(ctx, ownerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: no credential for owner %s", domain.ErrNotAuthenticated, ownerID)
		}
		// A store failure is not an auth problem; the owner must not be told
		// to re-link a working channel.
		return Result{}, fmt.Errorf("load credentials for owner %s: %w", ownerID, err)
	}
	if !cred.IsAuthenticated || cred.RefreshToken == nil || *cred.RefreshToken == "" {
		return Result{}, fmt.Errorf("%w: owner %s must re-link their channel", domain.ErrNotAuthenticated, ownerID)
	}

	if _, err := os.Stat(videoPath); err != nil {
		return Result{}, fmt.Errorf("%w: %s", domain.ErrVideoMissing, videoPath)
	}

	accessToken, err := p.tokens.Refresh(ctx, *cred.RefreshToken)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", domain.ErrTokenRefresh, err)
	}
	if err := p.creds.UpdateAccessToken(ctx, ownerID, accessToken); err != nil {
		log.Warn().Err(err).Str("owner_id", ownerID).Msg("could not persist refreshed access token")
	}

	videoID, url, err := p.uploader.Upload(ctx, accessToken, UploadRequest{
		VideoPath:   videoPath,
		Title:       title,
		Description: description,
	})
	if err != nil {
		return Result{}, fmt.Errorf("upload: %w", err)
	}

	// The video is live from here on; everything below is best-effort.
	recordedThumb := thumbnailPath
	if thumbnailPath != nil && *thumbnailPath != "" {
		if _, err := os.Stat(*thumbnailPath); err != nil {
			log.Warn().Str("thumbnail", *thumbnailPath).Msg("thumbnail file missing, skipping")
			recordedThumb = nil
		} else if err := p.uploader.SetThumbnail(ctx, accessToken, videoID, *thumbnailPath); err != nil {
			log.Warn().Err(err).Str("video_id", videoID).Msg("thumbnail upload failed")
			recordedThumb = nil
		}
	} else {
		recordedThumb = nil
	}

	p.relocate(videoPath)

	if _, err := p.published.CreatePublished(ctx, domain.PublishedRecord{
		OwnerID:         ownerID,
		VideoPath:       videoPath,
		ExternalVideoID: videoID,
		URL:             url,
		Title:           title,
		Description:     description,
		ThumbnailPath:   recordedThumb,
	}); err != nil {
		log.Error().Err(err).Str("video_id", videoID).Msg("could not write published record")
	}

	return Result{VideoID: videoID, URL: url}, nil
}

// relocate copies the source into the posted area (the file may be shared,
// so never move) and clears a duplicate inbox copy so the file is not
// offered again.
func (p *Publisher) relocate(videoPath string) {
	if p.postedDir != "" {
		dst := filepath.Join(p.postedDir, filepath.Base(videoPath))
		if err := copyFile(videoPath, dst); err != nil {
			log.Warn().Err(err).Str("video", videoPath).Msg("could not copy video to posted dir")
		}
	}
	if p.inboxDir != "" {
		inboxCopy := filepath.Join(p.inboxDir, filepath.Base(videoPath))
		if inboxCopy != videoPath {
			if _, err := os.Stat(inboxCopy); err == nil {
				if err := os.Remove(inboxCopy); err != nil {
					log.Warn().Err(err).Str("video", inboxCopy).Msg("could not remove inbox copy")
				}
			}
		}
	}
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}

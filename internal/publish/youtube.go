package publish

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// YouTube implements Uploader and TokenRefresher against the YouTube Data
// API v3.
type YouTube struct {
	ClientID     string
	ClientSecret string
	CategoryID   string
	Privacy      string
	Language     string
}

func NewYouTube(clientID, clientSecret string) *YouTube {
	return &YouTube{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		CategoryID:   "22", // People & Blogs
		Privacy:      "public",
		Language:     "en",
	}
}

func (y *YouTube) oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     y.ClientID,
		ClientSecret: y.ClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{youtube.YoutubeUploadScope, youtube.YoutubeScope},
	}
}

// Refresh exchanges the stored refresh token for an access token. The seed
// token is created already expired to force a round-trip.
func (y *YouTube) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if y.ClientID == "" || y.ClientSecret == "" {
		return "", fmt.Errorf("oauth client credentials not configured")
	}
	seed := &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Now().Add(-time.Hour),
	}
	tok, err := y.oauthConfig().TokenSource(ctx, seed).Token()
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (y *YouTube) service(ctx context.Context, accessToken string) (*youtube.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	return youtube.NewService(ctx, option.WithTokenSource(src))
}

// Upload inserts the video with resumable media upload and returns the
// platform id and watch URL.
func (y *YouTube) Upload(ctx context.Context, accessToken string, req UploadRequest) (string, string, error) {
	svc, err := y.service(ctx, accessToken)
	if err != nil {
		return "", "", fmt.Errorf("youtube service: %w", err)
	}

	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:                req.Title,
			Description:          req.Description,
			CategoryId:           y.CategoryID,
			DefaultLanguage:      y.Language,
			DefaultAudioLanguage: y.Language,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: y.Privacy,
		},
	}

	f, err := os.Open(req.VideoPath)
	if err != nil {
		return "", "", fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	if fi, err := f.Stat(); err == nil {
		log.Info().Str("title", req.Title).Float64("size_mb", float64(fi.Size())/1024/1024).Msg("starting upload")
	}

	uploaded, err := svc.Videos.Insert([]string{"snippet", "status"}, video).Media(f).Do()
	if err != nil {
		return "", "", fmt.Errorf("youtube upload: %w", err)
	}

	url := fmt.Sprintf("https://www.youtube.com/watch?v=%s", uploaded.Id)
	return uploaded.Id, url, nil
}

// SetThumbnail uploads a custom thumbnail for an already-inserted video.
func (y *YouTube) SetThumbnail(ctx context.Context, accessToken, videoID, thumbnailPath string) error {
	svc, err := y.service(ctx, accessToken)
	if err != nil {
		return fmt.Errorf("youtube service: %w", err)
	}
	f, err := os.Open(thumbnailPath)
	if err != nil {
		return fmt.Errorf("open thumbnail: %w", err)
	}
	defer f.Close()
	if _, err := svc.Thumbnails.Set(videoID).Media(f).Do(); err != nil {
		return fmt.Errorf("set thumbnail: %w", err)
	}
	return nil
}

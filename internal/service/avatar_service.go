package service

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"inkwell/internal/config"
	"inkwell/internal/models"
	"inkwell/internal/observability"
	"inkwell/internal/repository"

	"github.com/chai2010/webp"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	xdraw "golang.org/x/image/draw"

	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp" // register WebP decoder
)

const (
	DefaultMediaDir              = "./media"
	DefaultAvatarMaxUploadSizeMB = 5
	AvatarSize                   = 256
	AvatarWebPQuality            = 80
	avatarSubdir                 = "avatars"
)

type UploadAvatarInput struct {
	CurrentUserID uint
	TargetID      uint
	Filename      string
	Content       []byte
}

// AvatarService normalizes uploaded profile pictures: decode, center
// crop to a square, downscale to 256px, re-encode as WebP under the
// media directory. Re-encoding also strips any metadata the upload
// carried.
type AvatarService struct {
	userRepo           repository.UserRepository
	mediaDir           string
	maxUploadSizeBytes int64
}

func NewAvatarService(userRepo repository.UserRepository, cfg *config.Config) *AvatarService {
	mediaDir := DefaultMediaDir
	maxUploadSizeMB := DefaultAvatarMaxUploadSizeMB

	if cfg != nil {
		if cfg.MediaDir != "" {
			mediaDir = cfg.MediaDir
		}
		if cfg.AvatarMaxUploadSizeMB > 0 {
			maxUploadSizeMB = cfg.AvatarMaxUploadSizeMB
		}
	}

	return &AvatarService{
		userRepo:           userRepo,
		mediaDir:           mediaDir,
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
	}
}

// Upload processes an avatar for the target user and returns the updated
// account. Only the owner may replace their avatar.
func (s *AvatarService) Upload(ctx context.Context, in UploadAvatarInput) (*models.User, error) {
	if in.TargetID != in.CurrentUserID {
		return nil, models.NewForbiddenError("Not authorized to update this user")
	}
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxUploadSizeBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxUploadSizeBytes/(1024*1024)))
	}

	if mime := http.DetectContentType(in.Content); !isAllowedAvatarMIME(mime) {
		return nil, models.NewValidationError("Invalid image type")
	}

	user, err := s.userRepo.GetByID(ctx, in.TargetID)
	if err != nil {
		return nil, err
	}

	span, ctx := observability.NewSpan(ctx, "avatar.process")
	span.AddAttributes(
		attribute.Int64("user.id", int64(in.TargetID)),
		attribute.Int("upload.size_bytes", len(in.Content)),
	)

	decoded, _, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		span.SetError(err)
		span.End()
		return nil, models.NewValidationError("Invalid image file")
	}

	square := cropCenterSquare(decoded)
	scaled := scaleTo(square, AvatarSize)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, scaled, &webp.Options{Quality: AvatarWebPQuality}); err != nil {
		span.SetError(err)
		span.End()
		return nil, models.NewInternalError(err)
	}
	span.End()

	dir := filepath.Join(s.mediaDir, avatarSubdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, models.NewInternalError(err)
	}

	name := uuid.NewString() + ".webp"
	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
		return nil, models.NewInternalError(err)
	}

	previous := user.Avatar
	user.Avatar = "/media/avatars/" + name
	if err := s.userRepo.Update(ctx, user); err != nil {
		// Orphaned file; best-effort cleanup.
		os.Remove(filepath.Join(dir, name))
		return nil, err
	}

	s.removeStoredAvatar(previous)
	return user, nil
}

// removeStoredAvatar deletes a previously stored avatar file. External
// URLs and empty values are left alone; removal failures are ignored.
func (s *AvatarService) removeStoredAvatar(avatar string) {
	const prefix = "/media/avatars/"
	if !strings.HasPrefix(avatar, prefix) {
		return
	}
	name := filepath.Base(strings.TrimPrefix(avatar, prefix))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return
	}
	os.Remove(filepath.Join(s.mediaDir, avatarSubdir, name))
}

func isAllowedAvatarMIME(contentType string) bool {
	mime := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch mime {
	case "image/jpeg", "image/jpg", "image/png", "image/webp":
		return true
	default:
		return false
	}
}

func cropCenterSquare(src image.Image) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == h {
		return src
	}

	side := w
	if h < side {
		side = h
	}
	x := b.Min.X + (w-side)/2
	y := b.Min.Y + (h-side)/2

	dst := image.NewRGBA(image.Rect(0, 0, side, side))
	xdraw.Copy(dst, image.Point{}, src, image.Rect(x, y, x+side, y+side), xdraw.Over, nil)
	return dst
}

func scaleTo(src image.Image, size int) image.Image {
	b := src.Bounds()
	if b.Dx() <= size && b.Dy() <= size {
		return src
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
	return dst
}

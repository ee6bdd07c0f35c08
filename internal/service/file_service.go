package service

import (
	"bytes"
	"fmt"
	"image"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"ebantek/internal/config"
	"ebantek/internal/featureflags"
	"ebantek/internal/models"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder

	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
)

const (
	// MaxPDFSizeBytes caps the formal request letter upload.
	MaxPDFSizeBytes = 10 << 20
	// MaxImageSizeBytes caps each building photo upload.
	MaxImageSizeBytes = 5 << 20

	PreviewMaxSize = 512
	WebPQuality    = 70
)

// UploadFileInput is one uploaded document.
type UploadFileInput struct {
	Filename    string
	ContentType string
	Content     []byte
	UploaderID  uint
}

// FileService validates and stores uploaded documents on disk. Request
// records only carry a ContentRef into the store, never raw bytes.
type FileService struct {
	uploadDir string
	flags     *featureflags.Manager
}

// NewFileService returns a FileService writing under the configured directory.
func NewFileService(cfg *config.Config) *FileService {
	uploadDir := "./uploads"
	var flags *featureflags.Manager
	if cfg != nil {
		if cfg.UploadDir != "" {
			uploadDir = cfg.UploadDir
		}
		flags = featureflags.NewManager(cfg.FeatureFlags)
	}
	return &FileService{uploadDir: uploadDir, flags: flags}
}

// Store validates the upload and writes it to disk. PDFs are accepted up to
// 10MB; photos (JPEG/PNG/WebP) up to 5MB and must decode as real images.
// Photos additionally get a WebP preview for listing views.
func (s *FileService) Store(in UploadFileInput) (*models.RequestFile, error) {
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("File tidak boleh kosong")
	}

	detected := http.DetectContentType(in.Content)
	fileID := models.NewFileID()

	switch {
	case detected == "application/pdf":
		if int64(len(in.Content)) > MaxPDFSizeBytes {
			return nil, models.NewValidationError(
				fmt.Sprintf("Ukuran PDF maksimal %dMB", MaxPDFSizeBytes/(1<<20)))
		}
		rel := filepath.ToSlash(filepath.Join(fileID, "original.pdf"))
		if err := s.writeFile(rel, in.Content); err != nil {
			return nil, models.NewInternalError(err)
		}
		return &models.RequestFile{
			ID:         fileID,
			Name:       in.Filename,
			MimeType:   "application/pdf",
			SizeBytes:  int64(len(in.Content)),
			ContentRef: rel,
		}, nil

	case strings.HasPrefix(detected, "image/"):
		if int64(len(in.Content)) > MaxImageSizeBytes {
			return nil, models.NewValidationError(
				fmt.Sprintf("Ukuran foto maksimal %dMB", MaxImageSizeBytes/(1<<20)))
		}

		decoded, format, err := image.Decode(bytes.NewReader(in.Content))
		if err != nil {
			return nil, models.NewValidationError("File foto tidak valid")
		}
		if format != "jpeg" && format != "png" && format != "webp" {
			return nil, models.NewValidationError("Format foto harus JPEG, PNG atau WebP")
		}

		ext := format
		if ext == "jpeg" {
			ext = "jpg"
		}
		rel := filepath.ToSlash(filepath.Join(fileID, "original."+ext))
		if err := s.writeFile(rel, in.Content); err != nil {
			return nil, models.NewInternalError(err)
		}

		// Previews ship enabled; the file_previews flag is a kill switch and
		// staged-rollback lever.
		if s.flags.EnabledDefault("file_previews", in.UploaderID, true) {
			preview, err := encodePreviewWebP(decoded)
			if err == nil {
				previewRel := filepath.ToSlash(filepath.Join(fileID, "preview.webp"))
				if err := s.writeFile(previewRel, preview); err != nil {
					// The original is already stored; previews are best effort.
					_ = err
				}
			}
		}

		return &models.RequestFile{
			ID:         fileID,
			Name:       in.Filename,
			MimeType:   "image/" + format,
			SizeBytes:  int64(len(in.Content)),
			ContentRef: rel,
		}, nil

	default:
		return nil, models.NewValidationError("Tipe file harus PDF atau foto (JPEG/PNG/WebP)")
	}
}

// Resolve maps a stored ContentRef to an absolute path, refusing anything
// that escapes the upload directory.
func (s *FileService) Resolve(contentRef string) (string, error) {
	clean := filepath.Clean(contentRef)
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", models.NewValidationError("Referensi file tidak valid")
	}

	abs := filepath.Join(s.uploadDir, clean)
	if _, err := os.Stat(abs); err != nil {
		return "", models.NewNotFoundError("File", contentRef)
	}
	return abs, nil
}

// PreviewRef returns the preview path for a stored photo, or empty if the
// file has none.
func (s *FileService) PreviewRef(file *models.RequestFile) string {
	if !strings.HasPrefix(file.MimeType, "image/") {
		return ""
	}
	return filepath.ToSlash(filepath.Join(file.ID, "preview.webp"))
}

func (s *FileService) writeFile(rel string, content []byte) error {
	abs := filepath.Join(s.uploadDir, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return err
	}
	return os.WriteFile(abs, content, 0o644)
}

// encodePreviewWebP shrinks the image to fit PreviewMaxSize and encodes WebP.
func encodePreviewWebP(src image.Image) ([]byte, error) {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > PreviewMaxSize || h > PreviewMaxSize {
		scale := float64(PreviewMaxSize) / float64(w)
		if h > w {
			scale = float64(PreviewMaxSize) / float64(h)
		}
		nw := int(float64(w) * scale)
		nh := int(float64(h) * scale)
		if nw < 1 {
			nw = 1
		}
		if nh < 1 {
			nh = 1
		}
		dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := webp.Encode(&buf, src, &webp.Options{Quality: WebPQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

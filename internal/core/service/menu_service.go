package service

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"menu360/internal/core/domain"
	"menu360/internal/ports/inbound"
	"menu360/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const MaxImageBytes = 5 << 20

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// MenuFinder is the catalog lookup the menu service needs.
type MenuFinder interface {
	FindMenuItem(ctx context.Context, restaurantID, itemID string) (domain.MenuItem, error)
}

type MenuService struct {
	repo    outbound.Repository
	cache   outbound.QueryCache
	catalog MenuFinder
	media   outbound.MediaStore
	log     *logrus.Entry
	now     func() time.Time
}

func NewMenuService(repo outbound.Repository, cache outbound.QueryCache, catalog MenuFinder, media outbound.MediaStore, log *logrus.Entry) *MenuService {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &MenuService{repo: repo, cache: cache, catalog: catalog, media: media, log: log, now: time.Now}
}

// SaveCategory creates the category when it has no id, otherwise updates it.
func (s *MenuService) SaveCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	if err := c.Validate(); err != nil {
		return domain.Category{}, err
	}
	op := domain.OpUpdate
	if c.ID == "" {
		c.ID = uuid.NewString()
		c.CreatedAt = s.now()
		op = domain.OpInsert
	}

	saved, err := s.repo.SaveCategory(ctx, c)
	if err != nil {
		return domain.Category{}, fmt.Errorf("save category: %w", err)
	}
	applyLocal(ctx, s.cache, op, domain.KindCategories, saved, saved.ID, saved.RestaurantID)
	return saved, nil
}

// DeleteCategory keeps the category's items; they become uncategorized.
func (s *MenuService) DeleteCategory(ctx context.Context, restaurantID, id string) error {
	if err := s.repo.DeleteCategory(ctx, restaurantID, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	applyLocal(ctx, s.cache, domain.OpDelete, domain.KindCategories, nil, id, restaurantID)
	s.log.WithFields(logrus.Fields{"restaurant_id": restaurantID, "category_id": id}).Info("[menu] category deleted")
	return nil
}

func (s *MenuService) SaveMenuItem(ctx context.Context, m domain.MenuItem) (domain.MenuItem, error) {
	if err := m.Validate(); err != nil {
		return domain.MenuItem{}, err
	}
	op := domain.OpUpdate
	if m.ID == "" {
		m.ID = uuid.NewString()
		m.CreatedAt = s.now()
		op = domain.OpInsert
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	m.UpdatedAt = s.now()

	saved, err := s.repo.SaveMenuItem(ctx, m)
	if err != nil {
		return domain.MenuItem{}, fmt.Errorf("save menu item: %w", err)
	}
	applyLocal(ctx, s.cache, op, domain.KindMenuItems, saved, saved.ID, saved.RestaurantID)
	return saved, nil
}

func (s *MenuService) DeleteMenuItem(ctx context.Context, restaurantID, id string) error {
	var image string
	if s.catalog != nil {
		if m, err := s.catalog.FindMenuItem(ctx, restaurantID, id); err == nil {
			image = m.ImageURL
		}
	}

	if err := s.repo.DeleteMenuItem(ctx, restaurantID, id); err != nil {
		return fmt.Errorf("delete menu item: %w", err)
	}
	applyLocal(ctx, s.cache, domain.OpDelete, domain.KindMenuItems, nil, id, restaurantID)
	s.removeImage(ctx, image)
	return nil
}

// UploadItemImage stores the image and points the item at its public URL.
// The previous image, if it lives in the bucket, is removed.
func (s *MenuService) UploadItemImage(ctx context.Context, restaurantID, itemID, filename, contentType string, data []byte) (domain.MenuItem, error) {
	if s.media == nil {
		return domain.MenuItem{}, fmt.Errorf("media storage: %w", domain.ErrUnavailable)
	}
	if len(data) == 0 {
		return domain.MenuItem{}, domain.NewValidationError("image", "is empty")
	}
	if len(data) > MaxImageBytes {
		return domain.MenuItem{}, domain.NewValidationError("image", "is larger than 5 MB")
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := imageExt[contentType]
	if !ok && (contentType == "" || contentType == "application/octet-stream") {
		// browsers sometimes omit the part type; trust the file extension then
		for ct, e := range imageExt {
			if fe := strings.ToLower(path.Ext(filename)); fe == e || (fe == ".jpeg" && e == ".jpg") {
				contentType, ext, ok = ct, e, true
				break
			}
		}
	}
	if !ok {
		return domain.MenuItem{}, domain.NewValidationError("image", "unsupported content type "+contentType)
	}

	item, err := s.catalog.FindMenuItem(ctx, restaurantID, itemID)
	if err != nil {
		return domain.MenuItem{}, err
	}

	objectPath := fmt.Sprintf("%s/%s-%s%s", restaurantID, itemID, uuid.NewString()[:8], ext)
	if err := s.media.Upload(ctx, objectPath, contentType, data); err != nil {
		return domain.MenuItem{}, fmt.Errorf("upload image: %w", err)
	}

	previous := item.ImageURL
	item.ImageURL = s.media.PublicURL(objectPath)
	saved, err := s.SaveMenuItem(ctx, item)
	if err != nil {
		s.removeImage(ctx, item.ImageURL)
		return domain.MenuItem{}, err
	}
	s.removeImage(ctx, previous)
	return saved, nil
}

func (s *MenuService) BootstrapStorage(ctx context.Context) error {
	if s.media == nil {
		return fmt.Errorf("media storage: %w", domain.ErrUnavailable)
	}
	if err := s.media.EnsureBucket(ctx); err != nil {
		return fmt.Errorf("bootstrap storage: %w", err)
	}
	return nil
}

// removeImage deletes an object referenced by a public URL of our bucket.
func (s *MenuService) removeImage(ctx context.Context, url string) {
	if url == "" || s.media == nil {
		return
	}
	prefix := s.media.PublicURL("")
	if !strings.HasPrefix(url, prefix) {
		return
	}
	if err := s.media.Delete(ctx, strings.TrimPrefix(url, prefix)); err != nil {
		s.log.WithError(err).WithField("url", url).Warn("[menu] image cleanup failed")
	}
}

var _ inbound.MenuUseCase = (*MenuService)(nil)

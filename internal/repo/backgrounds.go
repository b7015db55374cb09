package repo

import (
	"context"
	"fmt"
)

// ListBackgrounds returns every decorative background image, ordered by id.
func (r *Repository) ListBackgrounds(ctx context.Context) ([]BackgroundImage, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, image_url, theme FROM background_images ORDER BY id`)
	if err != nil {
		return nil, storeErr("list backgrounds", err)
	}
	defer rows.Close()

	var images []BackgroundImage
	for rows.Next() {
		var img BackgroundImage
		if err := rows.Scan(&img.ID, &img.ImageURL, &img.Theme); err != nil {
			return nil, storeErr("scan background", err)
		}
		images = append(images, img)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate backgrounds", err)
	}
	return images, nil
}

// AddBackground inserts a background image.
func (r *Repository) AddBackground(ctx context.Context, imageURL, theme string) (*BackgroundImage, error) {
	q := r.dialect.rebind(`INSERT INTO background_images (image_url, theme) VALUES (?, ?) RETURNING id`)
	img := BackgroundImage{ImageURL: imageURL, Theme: theme}
	if err := r.db.QueryRowContext(ctx, q, imageURL, theme).Scan(&img.ID); err != nil {
		return nil, storeErr(fmt.Sprintf("add %s background", theme), err)
	}
	return &img, nil
}

package storage

import (
	"fmt"
	"path"
	"strings"

	"mobilechat/internal/apperrors"
)

// ProfileImagePath is where a user's profile photo lives in blob storage.
func ProfileImagePath(userID string) string {
	return fmt.Sprintf("profile_images/%s.jpg", userID)
}

// ChatImagePath is where an image posted to a room lives in blob storage.
func ChatImagePath(roomID, fileName string) string {
	return path.Join("chat_images", roomID, fileName)
}

// cleanBlobPath rejects absolute paths and paths escaping the store root.
func cleanBlobPath(p string) (string, error) {
	cleaned := path.Clean(strings.TrimSpace(p))
	if cleaned == "." || cleaned == "" || strings.HasPrefix(cleaned, "/") || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", apperrors.Newf(apperrors.ErrInvalidArgument, "invalid blob path %q", p)
	}
	return cleaned, nil
}

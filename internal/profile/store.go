package profile

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shehryarbajwa/crm-voice-assistant/pkg/models"
)

// ErrProfileNotFound is returned when an account has no saved profile
var ErrProfileNotFound = errors.New("profile: not found")

// Store persists browser user-data directories so CRM logins survive
// container restarts
type Store struct {
	storePath string
	mu        sync.RWMutex
	profiles  map[string]*models.BrowserProfile // account -> profile
	now       func() time.Time
}

// NewStore creates a profile store rooted at storePath
func NewStore(storePath string) (*Store, error) {
	if err := os.MkdirAll(storePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Store{
		storePath: storePath,
		profiles:  make(map[string]*models.BrowserProfile),
		now:       time.Now,
	}, nil
}

// profileID derives a stable file-safe id for an account
func profileID(account string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("crm-account:"+account)).String()
}

// Get returns the saved profile for an account
func (s *Store) Get(account string) (*models.BrowserProfile, error) {
	s.mu.RLock()
	p, ok := s.profiles[account]
	s.mu.RUnlock()
	if ok {
		cp := *p
		return &cp, nil
	}

	// Archives written by an earlier process are picked up lazily
	archivePath := filepath.Join(s.storePath, profileID(account)+".tar.gz")
	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, account)
	}

	p = &models.BrowserProfile{
		ID:        profileID(account),
		Account:   account,
		CreatedAt: info.ModTime(),
		UpdatedAt: info.ModTime(),
		DataPath:  archivePath,
	}

	s.mu.Lock()
	s.profiles[account] = p
	s.mu.Unlock()

	cp := *p
	return &cp, nil
}

// Save compresses a browser user-data directory into the account's archive
func (s *Store) Save(account, userDataDir string) (*models.BrowserProfile, error) {
	if account == "" {
		return nil, fmt.Errorf("account is required")
	}

	id := profileID(account)
	archivePath := filepath.Join(s.storePath, id+".tar.gz")
	tmpPath := archivePath + ".tmp"

	if err := compressDirectory(userDataDir, tmpPath); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to compress profile data: %w", err)
	}
	if err := os.Rename(tmpPath, archivePath); err != nil {
		return nil, fmt.Errorf("failed to store profile archive: %w", err)
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[account]
	if !ok {
		p = &models.BrowserProfile{ID: id, Account: account, CreatedAt: now}
		s.profiles[account] = p
	}
	p.UpdatedAt = now
	p.DataPath = archivePath

	cp := *p
	return &cp, nil
}

// Restore extracts the account's archive into target
func (s *Store) Restore(account, target string) error {
	p, err := s.Get(account)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(target, 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	if err := extractDirectory(p.DataPath, target); err != nil {
		return fmt.Errorf("failed to extract profile data: %w", err)
	}

	return nil
}

// Delete removes an account's profile and its archive
func (s *Store) Delete(account string) error {
	p, err := s.Get(account)
	if err != nil {
		return err
	}

	if err := os.Remove(p.DataPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete profile data: %w", err)
	}

	s.mu.Lock()
	delete(s.profiles, account)
	s.mu.Unlock()

	return nil
}

// compressDirectory creates a tar.gz archive of a directory
func compressDirectory(source, target string) error {
	file, err := os.Create(target)
	if err != nil {
		return err
	}
	defer file.Close()

	gzWriter := gzip.NewWriter(file)
	defer gzWriter.Close()

	tarWriter := tar.NewWriter(gzWriter)
	defer tarWriter.Close()

	return filepath.Walk(source, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Chrome leaves singleton sockets and locks behind
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}

		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		_, err = io.Copy(tarWriter, f)
		return err
	})
}

// extractDirectory extracts a tar.gz archive to a directory
func extractDirectory(source, target string) error {
	file, err := os.Open(source)
	if err != nil {
		return err
	}
	defer file.Close()

	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}

		targetPath := filepath.Join(target, filepath.FromSlash(header.Name))
		if !strings.HasPrefix(targetPath, filepath.Clean(target)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes target: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return err
			}

			outFile, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode).Perm())
			if err != nil {
				return err
			}

			if _, err := io.Copy(outFile, tarReader); err != nil {
				outFile.Close()
				return err
			}
			outFile.Close()
		}
	}

	return nil
}

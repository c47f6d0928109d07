package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bitfantasy/nimo-mis/internal/mis/entity"
)

// attributesFile 每个文件夹下保存属性的隐藏文件
const attributesFile = ".attributes.json"

type folderAttributes struct {
	Folder map[string]string            `json:"folder,omitempty"`
	Files  map[string]map[string]string `json:"files,omitempty"`
}

// LocalStore 本地磁盘文档库，默认目录 ./uploads
type LocalStore struct {
	root string
	mu   sync.Mutex // 保护属性文件读写
}

// NewLocalStore 创建本地文档库
func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) dir(folder string) (string, error) {
	p, err := cleanFolder(folder)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(p)), nil
}

func (s *LocalStore) FolderExists(_ context.Context, folder string) (bool, error) {
	dir, err := s.dir(folder)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("stat folder %s: %w", folder, err)
	}
	return info.IsDir(), nil
}

func (s *LocalStore) CreateFolder(_ context.Context, folder string) error {
	dir, err := s.dir(folder)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return fmt.Errorf("create folder %s: %w", folder, err)
	}
	if err := os.Mkdir(dir, 0755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return ErrFolderExists
		}
		return fmt.Errorf("create folder %s: %w", folder, err)
	}
	return nil
}

func (s *LocalStore) ListFiles(_ context.Context, folder string) ([]entity.StoredFile, error) {
	dir, err := s.dir(folder)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrFolderNotFound
		}
		return nil, fmt.Errorf("list folder %s: %w", folder, err)
	}

	s.mu.Lock()
	attrs, err := readAttributes(dir)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var files []entity.StoredFile
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", e.Name(), err)
		}
		files = append(files, s.storedFile(folder, info, attrs.Files[e.Name()]))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (s *LocalStore) AddFile(_ context.Context, folder, name string, content []byte, overwrite bool) (*entity.StoredFile, error) {
	dir, err := s.dir(folder)
	if err != nil {
		return nil, err
	}
	if _, err := cleanName(name); err != nil {
		return nil, err
	}
	if strings.HasPrefix(name, ".") {
		return nil, fmt.Errorf("%w: hidden file name %q", ErrInvalidPath, name)
	}
	target := filepath.Join(dir, name)

	if overwrite {
		err = replaceFile(dir, target, content)
	} else {
		err = createFile(target, content)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrFolderNotFound
		}
		if errors.Is(err, fs.ErrExist) {
			return nil, ErrFileExists
		}
		return nil, fmt.Errorf("write %s/%s: %w", folder, name, err)
	}

	info, err := os.Stat(target)
	if err != nil {
		return nil, fmt.Errorf("stat %s/%s: %w", folder, name, err)
	}
	s.mu.Lock()
	attrs, err := readAttributes(dir)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	file := s.storedFile(folder, info, attrs.Files[name])
	return &file, nil
}

func (s *LocalStore) SetFolderAttribute(ctx context.Context, folder, attr, value string) error {
	exists, err := s.FolderExists(ctx, folder)
	if err != nil {
		return err
	}
	if !exists {
		return ErrFolderNotFound
	}
	dir, _ := s.dir(folder)
	return s.updateAttributes(dir, func(a *folderAttributes) {
		if a.Folder == nil {
			a.Folder = make(map[string]string)
		}
		a.Folder[attr] = value
	})
}

func (s *LocalStore) SetFileAttribute(_ context.Context, folder, name, attr, value string) error {
	dir, err := s.dir(folder)
	if err != nil {
		return err
	}
	if _, err := cleanName(name); err != nil {
		return err
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrFileNotFound
		}
		return fmt.Errorf("stat %s/%s: %w", folder, name, err)
	}
	return s.updateAttributes(dir, func(a *folderAttributes) {
		if a.Files == nil {
			a.Files = make(map[string]map[string]string)
		}
		if a.Files[name] == nil {
			a.Files[name] = make(map[string]string)
		}
		a.Files[name][attr] = value
	})
}

// FolderAttributes returns the attributes set on a folder.
func (s *LocalStore) FolderAttributes(_ context.Context, folder string) (map[string]string, error) {
	dir, err := s.dir(folder)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	attrs, err := readAttributes(dir)
	if err != nil {
		return nil, err
	}
	return attrs.Folder, nil
}

func (s *LocalStore) updateAttributes(dir string, fn func(*folderAttributes)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	attrs, err := readAttributes(dir)
	if err != nil {
		return err
	}
	fn(&attrs)
	data, err := json.Marshal(attrs)
	if err != nil {
		return fmt.Errorf("encode attributes: %w", err)
	}
	return replaceFile(dir, filepath.Join(dir, attributesFile), data)
}

func (s *LocalStore) storedFile(folder string, info fs.FileInfo, attrs map[string]string) entity.StoredFile {
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}
	p, _ := cleanFolder(folder)
	return entity.StoredFile{
		Name:       info.Name(),
		Path:       p + "/" + info.Name(),
		Size:       info.Size(),
		ModifiedAt: info.ModTime(),
		Attributes: copied,
	}
}

func readAttributes(dir string) (folderAttributes, error) {
	var attrs folderAttributes
	data, err := os.ReadFile(filepath.Join(dir, attributesFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return attrs, nil
		}
		return attrs, fmt.Errorf("read attributes: %w", err)
	}
	if err := json.Unmarshal(data, &attrs); err != nil {
		return attrs, fmt.Errorf("decode attributes: %w", err)
	}
	return attrs, nil
}

// createFile fails with fs.ErrExist when target is already present.
func createFile(target string, content []byte) error {
	f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(target)
		return err
	}
	return f.Close()
}

// replaceFile writes to a temp file in dir and renames it over target.
func replaceFile(dir, target string, content []byte) error {
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), target)
}

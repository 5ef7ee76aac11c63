// Package assets indexes and watches the asset directory. The AssetManager is an
// fs.FS rooted at that directory, so the resource loader streams files through it.
package assets

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/thefork190/TheFork-sub000/engine/core"
	"github.com/thefork190/TheFork-sub000/engine/renderer/metadata"
)

var (
	ErrAssetNotFound = errors.New("asset not found")
	ErrNoLoader      = errors.New("no loader registered for asset type")
	ErrClosed        = errors.New("asset manager already closed")
)

type AssetInfo struct {
	/** @brief Slash separated path relative to the asset directory. */
	Path         string
	Type         metadata.ResourceType
	LastModified time.Time
}

type AssetManager struct {
	root    string
	fsys    fs.FS
	assets  map[string]AssetInfo
	loaders map[metadata.ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	stopped  chan struct{}
	fsnotify *fsnotify.Watcher
	started  bool
	isClosed bool
}

func NewAssetManager(root string) (*AssetManager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("asset directory `%s` is not a directory", root)
	}
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &AssetManager{
		root:     abs,
		fsys:     os.DirFS(abs),
		assets:   make(map[string]AssetInfo),
		loaders:  make(map[metadata.ResourceType]Loader),
		fsnotify: fsWatch,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Initialize registers the loaders, indexes the asset directory and starts watching it.
func (am *AssetManager) Initialize() error {
	am.registerLoader(metadata.ResourceTypeBinary, &BinaryLoader{})
	am.registerLoader(metadata.ResourceTypeImage, &ImageLoader{})
	am.registerLoader(metadata.ResourceTypeGeometry, &GeometryLoader{})

	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return ErrClosed
	}
	am.started = true
	am.mutex.Unlock()
	go am.start()

	if err := am.watchRecursive(am.root, false); err != nil {
		core.LogError("failed to watch asset directory `%s`: %s", am.root, err)
		return err
	}
	core.LogInfo("asset manager watching `%s` (%d assets)", am.root, am.Count())
	return nil
}

func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	started := am.started
	am.mutex.Unlock()

	close(am.done)
	if started {
		<-am.stopped
	}
	return am.fsnotify.Close()
}

// Root returns the absolute path of the asset directory.
func (am *AssetManager) Root() string {
	return am.root
}

// Open implements fs.FS. name is slash separated and relative to the asset directory.
func (am *AssetManager) Open(name string) (fs.File, error) {
	return am.fsys.Open(name)
}

func (am *AssetManager) Count() int {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	return len(am.assets)
}

/**
 * @brief Looks an asset up by its path, or else by its file name without extension.
 * Name lookups pick the first matching path in lexical order.
 */
func (am *AssetManager) Find(name string, resourceType metadata.ResourceType) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	if asset, ok := am.assets[name]; ok && asset.Type == resourceType {
		return asset, true
	}
	var found AssetInfo
	ok := false
	for p, asset := range am.assets {
		if asset.Type != resourceType {
			continue
		}
		base := path.Base(p)
		if strings.TrimSuffix(base, path.Ext(base)) != name {
			continue
		}
		if !ok || p < found.Path {
			found, ok = asset, true
		}
	}
	return found, ok
}

// Assets lists the indexed assets of one type sorted by path.
func (am *AssetManager) Assets(resourceType metadata.ResourceType) []AssetInfo {
	am.mutex.RLock()
	list := make([]AssetInfo, 0, len(am.assets))
	for _, asset := range am.assets {
		if asset.Type == resourceType {
			list = append(list, asset)
		}
	}
	am.mutex.RUnlock()
	sort.Slice(list, func(i, j int) bool { return list[i].Path < list[j].Path })
	return list
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.loaders[assetType] = loader
}

// LoadAsset parses an asset with the loader registered for its type.
func (am *AssetManager) LoadAsset(name string, resourceType metadata.ResourceType) (interface{}, error) {
	asset, exists := am.Find(name, resourceType)
	if !exists {
		return nil, fmt.Errorf("%s: %w", name, ErrAssetNotFound)
	}
	am.mutex.RLock()
	loader, loaderExists := am.loaders[asset.Type]
	am.mutex.RUnlock()
	if !loaderExists {
		return nil, fmt.Errorf("asset type %d: %w", asset.Type, ErrNoLoader)
	}

	f, err := am.Open(asset.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := loader.Load(f, asset.Path)
	if err != nil {
		core.LogError("failed to load asset `%s`: %s", asset.Path, err)
		return nil, err
	}
	return data, nil
}

func (am *AssetManager) start() {
	defer close(am.stopped)
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleWatchEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			return
		}
	}
}

func (am *AssetManager) handleWatchEvent(e fsnotify.Event) {
	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(e.Name); err == nil && s.IsDir() {
			// files may land in the directory before its watch is added
			if err := am.watchRecursive(e.Name, true); err != nil {
				core.LogWarn("failed to watch new asset directory `%s`: %s", e.Name, err)
			}
			return
		}
	}
	rel, ok := am.relative(e.Name)
	if !ok {
		return
	}
	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		if asset, ok := am.handleFileEvent(rel); ok {
			fireAssetEvent(am, core.EVENT_CODE_ASSET_CHANGED, asset)
		}
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		for _, asset := range am.removeAsset(rel) {
			fireAssetEvent(am, core.EVENT_CODE_ASSET_REMOVED, asset)
		}
		// Can't stat a deleted path, so it is always treated as a possible directory.
		_ = am.fsnotify.Remove(e.Name)
	}
}

// watchRecursive watches dir and every directory below it and indexes their files.
func (am *AssetManager) watchRecursive(dir string, notify bool) error {
	return filepath.WalkDir(dir, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		rel, ok := am.relative(walkPath)
		if !ok {
			return nil
		}
		if asset, ok := am.handleFileEvent(rel); ok && notify {
			fireAssetEvent(am, core.EVENT_CODE_ASSET_CHANGED, asset)
		}
		return nil
	})
}

func (am *AssetManager) relative(name string) (string, bool) {
	rel, err := filepath.Rel(am.root, name)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(rel string) (AssetInfo, bool) {
	assetType, ok := determineAssetType(rel)
	if !ok {
		return AssetInfo{}, false
	}
	asset := AssetInfo{
		Path:         rel,
		Type:         assetType,
		LastModified: time.Now(),
	}
	if s, err := fs.Stat(am.fsys, rel); err == nil {
		asset.LastModified = s.ModTime()
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	am.assets[rel] = asset
	return asset, true
}

// removeAsset drops rel, or everything below it if it was a directory.
func (am *AssetManager) removeAsset(rel string) []AssetInfo {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	var removed []AssetInfo
	for p, asset := range am.assets {
		if p == rel || strings.HasPrefix(p, rel+"/") {
			removed = append(removed, asset)
			delete(am.assets, p)
		}
	}
	return removed
}

func fireAssetEvent(sender interface{}, code core.SystemEventCode, asset AssetInfo) {
	context := core.EventContext{}
	context.Data.C[0] = asset.Path
	context.Data.U32[0] = uint32(asset.Type)
	core.EventFire(code, sender, context)
}

func determineAssetType(p string) (metadata.ResourceType, bool) {
	switch strings.ToLower(path.Ext(p)) {
	case ".dds", ".ktx", ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return metadata.ResourceTypeImage, true
	case ".geom":
		return metadata.ResourceTypeGeometry, true
	case ".bin", ".spv":
		return metadata.ResourceTypeBinary, true
	default:
		return metadata.ResourceTypeCustom, false
	}
}

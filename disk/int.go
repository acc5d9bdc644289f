package disk

import "time"

type CatalogEntry interface {
	Size() int // nominal file size in bytes
	Name() string
	NameUnadorned() string
	Date() (time.Time, bool)
	Type() string
}

type DiskImage interface {
	GetCatalog(pattern string) ([]CatalogEntry, error)
	ReadFile(fd CatalogEntry) ([]byte, error)
	GetUsedBitmap() ([]bool, error)
}

var _ CatalogEntry = (*RT11FileDescriptor)(nil)
var _ DiskImage = (*DSKWrapper)(nil)

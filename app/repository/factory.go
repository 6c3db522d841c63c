package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	store Store
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
		f.store = &store{
			PaymentRepository: f.repos.Payment,
			LogRepository:     f.repos.Log,
			OrderRepository:   f.repos.Order,
		}
	})
	return f.repos
}

// GetStore returns the authoritative persistence gateway
func (f *Factory) GetStore() Store {
	f.GetRepositories()
	return f.store
}

package config

import "sync"

// BaseConfigManager guards one section of the main config
type BaseConfigManager[T any] struct {
	mu   sync.RWMutex
	conf *T

	mgr *Manager
}

// C returns the read-only section by value
func (a *BaseConfigManager[T]) C() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return *a.conf
}

type ConfigModifierFunc[T any] func(c *T)

// Set modifies the section in memory, call Save to persist it
func (a *BaseConfigManager[T]) Set(setFunc ConfigModifierFunc[T]) {
	a.mu.Lock()
	defer a.mu.Unlock()

	setFunc(a.conf)
}

// Save writes the whole config, the manager locks every section itself
func (a *BaseConfigManager[T]) Save() error {
	return a.mgr.Save()
}

func (a *BaseConfigManager[T]) lock() {
	a.mu.Lock()
}

func (a *BaseConfigManager[T]) unlock() {
	a.mu.Unlock()
}

package api

import (
	"github.com/nasguard/nasguard/internal/store"
)

func storeContextFrom(values map[string]any) (store.Context, error) {
	return store.NewContext(values)
}

package player

import (
	"context"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/park285/handbrain-chess/internal/handbrain"
)

type directory interface {
	handbrain.Directory
	Register(ctx context.Context, username string) (*handbrain.Player, error)
}

func directories(t *testing.T) map[string]directory {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return map[string]directory{
		"memory": NewMemoryDirectory(),
		"redis":  NewRedisDirectory(rdb),
	}
}

func TestRegisterAndResolve(t *testing.T) {
	for name, d := range directories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			p, err := d.Register(ctx, "  alice ")
			if err != nil {
				t.Fatalf("Register: %v", err)
			}
			if p.ID == "" || p.Username != "alice" || p.Rating != DefaultRating {
				t.Fatalf("unexpected player: %+v", p)
			}
			got, err := d.Resolve(ctx, p.ID)
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if got.ID != p.ID || got.Username != "alice" {
				t.Fatalf("resolved %+v; want %+v", got, p)
			}
		})
	}
}

func TestResolveUnknown(t *testing.T) {
	for name, d := range directories(t) {
		t.Run(name, func(t *testing.T) {
			_, err := d.Resolve(context.Background(), "nobody")
			if handbrain.KindOf(err) != handbrain.KindNotFound {
				t.Fatalf("err = %v; want NOT_FOUND", err)
			}
		})
	}
}

func TestRegisterValidatesUsername(t *testing.T) {
	for name, d := range directories(t) {
		t.Run(name, func(t *testing.T) {
			for _, bad := range []string{"", "   ", strings.Repeat("x", maxUsernameLen+1)} {
				if _, err := d.Register(context.Background(), bad); handbrain.KindOf(err) != handbrain.KindFormat {
					t.Fatalf("Register(%q) err = %v; want FORMAT", bad, err)
				}
			}
		})
	}
}

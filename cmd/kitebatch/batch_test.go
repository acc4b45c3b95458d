package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/kitebatch/config"
)

// offlineConfig devuelve una config sin credenciales, sin storage y sin pausas.
func offlineConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, k := range []string{"KITE_API_KEY", "KITE_API_SECRET", "KITE_ACCESS_TOKEN", "KITE_BASE_URL", "LOG_LEVEL", "LOG_FORMAT"} {
		t.Setenv(k, "")
	}
	cfg, err := config.Parse([]byte("dispatch:\n  pacing_ms: 0\nstorage:\n  disabled: true\n"))
	require.NoError(t, err)
	return cfg
}

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "watchlist.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunBatch_ExitCodes(t *testing.T) {
	priced := "Symbol,Quantity,Price\nINFY,2,1412.95\nTCS,1,3950.5\n"

	tests := []struct {
		name string
		cfg  func(*config.Config)
		opts func(t *testing.T) options
		want int
	}{
		{
			name: "nothing to do",
			opts: func(*testing.T) options { return options{} },
			want: 2,
		},
		{
			name: "unreadable watch-list",
			opts: func(t *testing.T) options {
				return options{watchlist: filepath.Join(t.TempDir(), "missing.csv")}
			},
			want: 1,
		},
		{
			name: "missing symbol column",
			opts: func(t *testing.T) options {
				return options{watchlist: writeCSV(t, "Ticker,Quantity\nINFY,1\n")}
			},
			want: 1,
		},
		{
			name: "nothing selected",
			opts: func(t *testing.T) options {
				return options{watchlist: writeCSV(t, "Symbol,Selected\nINFY,false\n")}
			},
			want: 2,
		},
		{
			name: "live without session",
			opts: func(t *testing.T) options {
				return options{watchlist: writeCSV(t, priced), live: true, confirm: true}
			},
			want: 1,
		},
		{
			name: "live without confirm",
			cfg: func(c *config.Config) {
				c.Broker.APIKey = "key"
				c.Broker.AccessToken = "token"
			},
			opts: func(t *testing.T) options {
				return options{watchlist: writeCSV(t, priced), live: true}
			},
			want: 2,
		},
		{
			name: "offline optimize without budget",
			opts: func(t *testing.T) options {
				return options{watchlist: writeCSV(t, priced), optimize: true}
			},
			want: 2,
		},
		{
			name: "offline optimize with budget",
			opts: func(t *testing.T) options {
				return options{
					watchlist: writeCSV(t, priced),
					optimize:  true,
					budget:    decimal.NewNullDecimal(decimal.NewFromInt(100000)),
				}
			},
			want: 0,
		},
		{
			name: "offline dry run",
			opts: func(t *testing.T) options {
				return options{watchlist: writeCSV(t, priced), add: []addition{{symbol: "WIPRO", quantity: 3}}}
			},
			want: 0,
		},
		{
			name: "every row failed",
			cfg:  func(c *config.Config) { c.Dispatch.OrderKind = "gtt" },
			opts: func(t *testing.T) options {
				return options{watchlist: writeCSV(t, priced)}
			},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := offlineConfig(t)
			if tt.cfg != nil {
				tt.cfg(cfg)
			}
			got := runBatch(context.Background(), cfg, tt.opts(t))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunBatch_ExportsResults(t *testing.T) {
	cfg := offlineConfig(t)
	out := filepath.Join(t.TempDir(), "out.csv")

	code := runBatch(context.Background(), cfg, options{
		watchlist: writeCSV(t, "Symbol,Quantity,Price\nINFY,2,1412.95\n"),
		out:       out,
	})

	require.Equal(t, 0, code)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "INFY")
	assert.Contains(t, string(data), "dry-run-1")
}

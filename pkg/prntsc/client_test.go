package prntsc

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"shotprobe/pkg/config"
	errs "shotprobe/pkg/errors"
	"shotprobe/pkg/logger"
	"shotprobe/pkg/models"
	"shotprobe/pkg/ratelimit"
)

const testUA = "Mozilla/5.0 test-agent"

func page(ogImage string) string {
	return fmt.Sprintf(`<!DOCTYPE html><html><head>
<meta property="og:title" content="Lightshot">
<meta property="og:image" content="%s"/>
</head><body><img id="screenshot-image"></body></html>`, ogImage)
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/hitcode0001", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page("https://image.prntscr.com/image/AbCdEf.png"))
	})
	mux.HandleFunc("/placeholder", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page("//st.prntscr.com/2023/07/24/0635/img/0_173a7b_211be8ff.png"))
	})
	mux.HandleFunc("/relative001", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, page("/img/shot.png"))
	})
	mux.HandleFunc("/notag000001", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>nothing</title></head></html>`)
	})
	mux.HandleFunc("/useragent01", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != testUA {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		fmt.Fprint(w, page("https://image.prntscr.com/image/ua.png"))
	})
	mux.HandleFunc("/slow0000001", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	mux.HandleFunc("/image.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		fmt.Fprint(w, "PNGDATA")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(baseURL string, opts ...Option) *Client {
	cfg := config.DefaultConfig().Probe
	cfg.BaseURL = baseURL
	cfg.UserAgent = testUA
	cfg.ResolveTimeout = 500 * time.Millisecond
	cfg.DownloadTimeout = time.Second
	return NewClient(cfg, opts...)
}

func TestResolve(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(srv.URL)

	tests := []struct {
		name     string
		code     string
		kind     models.ResultKind
		reason   models.MissReason
		imageURL string
	}{
		{"hit", "hitcode0001", models.Hit, models.MissNone, "https://image.prntscr.com/image/AbCdEf.png"},
		{"placeholder", "placeholder", models.Miss, models.MissPlaceholder, ""},
		{"not found", "missing0001", models.Miss, models.MissNotFound, ""},
		{"no tag", "notag000001", models.Miss, models.MissNoImageTag, ""},
		{"relative", "relative001", models.Hit, models.MissNone, srv.URL + "/img/shot.png"},
		{"user agent sent", "useragent01", models.Hit, models.MissNone, "https://image.prntscr.com/image/ua.png"},
		{"timeout", "slow0000001", models.Miss, models.MissTransient, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := client.Resolve(context.Background(), tt.code)
			assert.Equal(t, tt.kind, res.Kind)
			assert.Equal(t, tt.reason, res.Reason)
			assert.Equal(t, srv.URL+"/"+tt.code, res.PageURL)
			if tt.kind == models.Hit {
				assert.Equal(t, tt.imageURL, res.ImageURL)
				assert.NoError(t, res.Err)
			}
		})
	}
}

func TestResolvePlaceholderKeepsURL(t *testing.T) {
	srv := newTestServer(t)
	res := newTestClient(srv.URL).Resolve(context.Background(), "placeholder")
	assert.False(t, res.IsHit())
	assert.Contains(t, res.ImageURL, "st.prntscr.com")
	assert.True(t, newTestClient(srv.URL).IsPlaceholder(res.ImageURL))
}

func TestResolve404CarriesStatus(t *testing.T) {
	srv := newTestServer(t)
	res := newTestClient(srv.URL).Resolve(context.Background(), "missing0001")
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, errs.ErrorTypeNotFound, errs.TypeOf(res.Err))
}

func TestResolveNetworkFailureIsTransientMiss(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	tl := logger.NewTestLogger()
	res := newTestClient(base, WithLogger(tl)).Resolve(context.Background(), "anything001")
	assert.Equal(t, models.Miss, res.Kind)
	assert.Equal(t, models.MissTransient, res.Reason)
	assert.Equal(t, errs.ErrorTypeNetwork, errs.TypeOf(res.Err))
	assert.True(t, tl.HasMessage("HTTP request failed"))
}

func TestResolveCancelledContext(t *testing.T) {
	srv := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestClient(srv.URL).Resolve(ctx, "hitcode0001")
	assert.Equal(t, models.MissTransient, res.Reason)
}

func TestResolvePacingDoesNotUseTimeout(t *testing.T) {
	srv := newTestServer(t)
	var requests atomic.Int32
	counting := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		srv.Config.Handler.ServeHTTP(w, r)
	}))
	t.Cleanup(counting.Close)

	// one slot per second, resolve timeout is 500ms
	client := newTestClient(counting.URL, WithLimiter(ratelimit.NewTokenBucket(1, time.Second)))

	first := client.Resolve(context.Background(), "hitcode0001")
	second := client.Resolve(context.Background(), "hitcode0001")

	assert.True(t, first.IsHit())
	assert.True(t, second.IsHit(), "second resolve: %v", second.Err)
	assert.Equal(t, int32(2), requests.Load())
}

func TestResolvePacingHonorsCallerContext(t *testing.T) {
	srv := newTestServer(t)
	limiter := ratelimit.NewTokenBucket(1, time.Minute)
	require.True(t, limiter.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := newTestClient(srv.URL, WithLimiter(limiter)).Resolve(ctx, "hitcode0001")
	assert.Equal(t, models.MissTransient, res.Reason)
	assert.Equal(t, errs.ErrorTypeRateLimit, errs.TypeOf(res.Err))
}

func TestOpenImagePacingDoesNotUseTimeout(t *testing.T) {
	srv := newTestServer(t)
	cfg := config.DefaultConfig().Probe
	cfg.BaseURL = srv.URL
	cfg.DownloadTimeout = 300 * time.Millisecond
	client := NewClient(cfg, WithLimiter(ratelimit.NewTokenBucket(1, 600*time.Millisecond)))

	for i := 0; i < 2; i++ {
		body, done, err := client.OpenImage(context.Background(), srv.URL+"/image.png")
		require.NoError(t, err, "download %d", i)
		data, err := io.ReadAll(body)
		body.Close()
		done()
		require.NoError(t, err)
		assert.Equal(t, "PNGDATA", string(data))
	}
}

func TestOpenImage(t *testing.T) {
	srv := newTestServer(t)
	client := newTestClient(srv.URL)

	body, done, err := client.OpenImage(context.Background(), srv.URL+"/image.png")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	body.Close()
	done()
	require.NoError(t, err)
	assert.Equal(t, "PNGDATA", string(data))

	_, _, err = client.OpenImage(context.Background(), srv.URL+"/nope.png")
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeNotFound, errs.TypeOf(err))
}

func TestPageURL(t *testing.T) {
	c := newTestClient("https://prnt.sc/")
	assert.Equal(t, "https://prnt.sc/abc", c.PageURL("abc"))
}

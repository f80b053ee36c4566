package api

import (
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"

	logx "newsbot/pkg/logx"
)

// PprofConfig mounts net/http/pprof on the API router.
type PprofConfig struct {
	Enabled bool
	Prefix  string
	Token   string

	MutexProfileFraction int
	BlockProfileRate     int
}

func mountPprof(router *gin.Engine, cfg PprofConfig, log logx.Logger) {
	applyRuntimeRates(cfg)
	prefix := normalizePrefix(cfg.Prefix)
	base := strings.TrimSuffix(prefix, "/")

	g := router.Group(base, bearerOrQueryToken(cfg.Token))
	g.GET("/", gin.WrapF(indexAt(prefix)))
	g.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
	g.GET("/profile", gin.WrapF(hpprof.Profile))
	g.GET("/symbol", gin.WrapF(hpprof.Symbol))
	g.POST("/symbol", gin.WrapF(hpprof.Symbol))
	g.GET("/trace", gin.WrapF(hpprof.Trace))
	g.GET("/:profile", gin.WrapF(indexAt(prefix)))

	if strings.TrimSpace(cfg.Token) == "" {
		log.Warn("pprof mounted without token", logx.String("prefix", prefix))
	} else {
		log.Info("pprof mounted", logx.String("prefix", prefix))
	}
}

func applyRuntimeRates(cfg PprofConfig) {
	if cfg.MutexProfileFraction > 0 {
		runtime.SetMutexProfileFraction(cfg.MutexProfileFraction)
	}
	if cfg.BlockProfileRate > 0 {
		runtime.SetBlockProfileRate(cfg.BlockProfileRate)
	}
}

func normalizePrefix(prefix string) string {
	p := strings.TrimSpace(prefix)
	if p == "" {
		p = "/debug/pprof/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}

// indexAt serves pprof.Index under a custom prefix; Index expects paths
// rooted at /debug/pprof/.
func indexAt(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		suffix := strings.TrimPrefix(r.URL.Path, prefix)
		r2 := r.Clone(r.Context())
		r2.URL.Path = "/debug/pprof/" + suffix
		hpprof.Index(w, r2)
	}
}

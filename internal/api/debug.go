package api

import (
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"
)

const debugPrefix = "/debug/pprof"

// DebugConfig mounts net/http/pprof under /debug/pprof on the API listener.
//
// A non-loopback listener needs a Token unless AllowInsecure is set.
type DebugConfig struct {
	Enabled       bool
	Token         string
	AllowInsecure bool

	// Runtime profiling rates; 0 keeps the Go default.
	MutexProfileFraction int
	BlockProfileRate     int
}

func validateDebug(addr string, c DebugConfig) error {
	if !c.Enabled {
		return nil
	}
	if c.MutexProfileFraction < 0 || c.BlockProfileRate < 0 {
		return errors.New("http.debug: profile rates must be >= 0")
	}
	if strings.TrimSpace(c.Token) == "" && !c.AllowInsecure && !isLoopbackAddr(addr) {
		return errors.New("http.debug: non-loopback http.addr requires a token or allow_insecure")
	}
	return nil
}

func applyRuntimeRates(c DebugConfig) {
	runtime.SetMutexProfileFraction(c.MutexProfileFraction)
	runtime.SetBlockProfileRate(c.BlockProfileRate)
}

func mountDebug(r gin.IRouter, c DebugConfig) {
	g := r.Group(debugPrefix, bearerAuth(c.Token))
	g.GET("/", gin.WrapF(hpprof.Index))
	g.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
	g.GET("/profile", gin.WrapF(hpprof.Profile))
	g.GET("/symbol", gin.WrapF(hpprof.Symbol))
	g.POST("/symbol", gin.WrapF(hpprof.Symbol))
	g.GET("/trace", gin.WrapF(hpprof.Trace))
	// Named profiles (heap, goroutine, block...) are served by Index.
	g.GET("/:profile", gin.WrapF(hpprof.Index))
}

// bearerAuth accepts "Authorization: Bearer <token>" or ?token=<token>.
// An empty token disables the check.
func bearerAuth(token string) gin.HandlerFunc {
	tok := strings.TrimSpace(token)
	return func(c *gin.Context) {
		if tok == "" {
			c.Next()
			return
		}
		got := c.Query("token")
		if got == "" {
			got = strings.TrimSpace(strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer "))
		}
		if got != tok {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, Response{Status: "error", Error: "unauthorized"})
			return
		}
		c.Next()
	}
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		// empty host means all interfaces
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

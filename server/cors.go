package server

import (
	"fmt"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type originPolicy struct {
	origins []string
	pattern *regexp.Regexp
}

func newOriginPolicy(origins []string, pattern string) (*originPolicy, error) {
	p := &originPolicy{}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" {
			continue
		}
		if !strings.HasPrefix(o, "http://") && !strings.HasPrefix(o, "https://") {
			return nil, fmt.Errorf("cors origin %q must start with http:// or https://", o)
		}
		p.origins = append(p.origins, o)
	}
	if pattern != "" {
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return nil, fmt.Errorf("compile cors origin pattern: %w", err)
		}
		p.pattern = re
	}
	return p, nil
}

// Allowed reports whether origin is in the list or fully matches the
// pattern.
func (p *originPolicy) Allowed(origin string) bool {
	if slices.Contains(p.origins, origin) {
		return true
	}
	return p.pattern != nil && p.pattern.MatchString(origin)
}

func (p *originPolicy) middleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOriginFunc: p.Allowed,
		AllowMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
			http.MethodDelete, http.MethodHead, http.MethodOptions,
		},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	})
}

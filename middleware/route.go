package middleware

import "github.com/gin-gonic/gin"

// RouteOpt decorates a single route.
type RouteOpt struct {
	Auth gin.HandlerFunc // runs before the handler when set
}

func (o RouteOpt) chain(h gin.HandlerFunc) []gin.HandlerFunc {
	if o.Auth == nil {
		return []gin.HandlerFunc{h}
	}
	return []gin.HandlerFunc{o.Auth, h}
}

func POST(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.POST(path, opt.chain(handler)...)
}

func GET(r gin.IRoutes, path string, handler gin.HandlerFunc, opt RouteOpt) {
	r.GET(path, opt.chain(handler)...)
}

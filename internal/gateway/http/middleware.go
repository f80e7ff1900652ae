// Package http provides the gateway's sync API: node-authenticated change
// submission, status reconciliation queries and the pull feed.
package http

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"

	apperrors "github.com/edgepos/edgesync/internal/errors"
	gatewayDomain "github.com/edgepos/edgesync/internal/gateway/domain"
	gatewayUseCase "github.com/edgepos/edgesync/internal/gateway/usecase"
	"github.com/edgepos/edgesync/internal/httputil"
)

const (
	headerNodeID  = "X-Node-Id"
	headerNodeKey = "X-Node-Key"
)

type nodeContextKey struct{}

// WithNode stores the authenticated node in the context.
func WithNode(ctx context.Context, node *gatewayDomain.Node) context.Context {
	return context.WithValue(ctx, nodeContextKey{}, node)
}

// GetNode retrieves the authenticated node from the context.
func GetNode(ctx context.Context) (*gatewayDomain.Node, bool) {
	node, ok := ctx.Value(nodeContextKey{}).(*gatewayDomain.Node)
	return node, ok
}

// NodeAuthMiddleware authenticates requests with the X-Node-Id and X-Node-Key
// headers and stores the node in the request context.
//
// Error handling:
//   - Missing headers → 401 Unauthorized
//   - Unknown node or wrong key → 401 Unauthorized
//   - Deactivated node → 401 Unauthorized
func NodeAuthMiddleware(nodeUseCase gatewayUseCase.NodeUseCase, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		nodeID := c.GetHeader(headerNodeID)
		nodeKey := c.GetHeader(headerNodeKey)
		if nodeID == "" || nodeKey == "" {
			logger.Debug("node authentication failed: missing credentials headers")
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, logger)
			c.Abort()
			return
		}

		node, err := nodeUseCase.Authenticate(c.Request.Context(), nodeID, nodeKey)
		if err != nil {
			logger.Debug("node authentication failed",
				slog.String("node_id", nodeID),
				slog.String("error", err.Error()),
			)
			// An unknown node id must not be distinguishable from a wrong key
			if apperrors.Is(err, apperrors.ErrNotFound) {
				err = gatewayDomain.ErrInvalidNodeKey
			}
			httputil.HandleErrorGin(c, err, logger)
			c.Abort()
			return
		}

		ctx := WithNode(c.Request.Context(), node)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

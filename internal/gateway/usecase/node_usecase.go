package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	gatewayDomain "github.com/edgepos/edgesync/internal/gateway/domain"
)

// nodeUseCase implements the NodeUseCase interface.
type nodeUseCase struct {
	nodeRepo   NodeRepository
	keyService KeyService
	clock      clockwork.Clock
}

// Register creates a node and returns it together with its plain key.
func (u *nodeUseCase) Register(ctx context.Context, id, name string) (*gatewayDomain.Node, string, error) {
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}

	plainKey, hashedKey, err := u.keyService.GenerateKey()
	if err != nil {
		return nil, "", err
	}

	node := &gatewayDomain.Node{
		ID:        id,
		KeyHash:   hashedKey,
		Name:      name,
		IsActive:  true,
		CreatedAt: u.clock.Now().UTC(),
	}
	if err := u.nodeRepo.Create(ctx, node); err != nil {
		return nil, "", err
	}

	return node, plainKey, nil
}

// Authenticate verifies a node id and key pair.
func (u *nodeUseCase) Authenticate(ctx context.Context, id, plainKey string) (*gatewayDomain.Node, error) {
	node, err := u.nodeRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !node.IsActive {
		return nil, gatewayDomain.ErrNodeInactive
	}
	if !u.keyService.CompareKey(plainKey, node.KeyHash) {
		return nil, gatewayDomain.ErrInvalidNodeKey
	}
	return node, nil
}

// Deactivate disables a node.
func (u *nodeUseCase) Deactivate(ctx context.Context, id string) error {
	return u.nodeRepo.SetActive(ctx, id, false)
}

// NewNodeUseCase creates a new node use case instance with the provided dependencies.
func NewNodeUseCase(nodeRepo NodeRepository, keyService KeyService, clock clockwork.Clock) NodeUseCase {
	return &nodeUseCase{
		nodeRepo:   nodeRepo,
		keyService: keyService,
		clock:      clock,
	}
}

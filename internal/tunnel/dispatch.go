package tunnel

import (
	"context"
	"fmt"
	"log/slog"
)

// LocalHandler receives inner messages whose delivery instructions name the
// Local delivery type — i.e. messages addressed to this router's own
// tunnel subsystem.
type LocalHandler interface {
	HandleLocal(ctx context.Context, body []byte) error
}

// TunnelInjector re-injects an inner message into a named outbound
// tunnel's gateway, addressed to the given next-hop identity hash.
type TunnelInjector interface {
	InjectTunnel(ctx context.Context, tunnelID uint32, identHash [hashSize]byte, body []byte) error
}

// RouterTransport hands an inner message to the transport layer for direct
// delivery to a router identity, bypassing any tunnel.
type RouterTransport interface {
	SendToRouter(ctx context.Context, identHash [hashSize]byte, body []byte) error
}

// DeliveryDispatcher routes a reassembled inner message to the right
// collaborator based on its recovered delivery instructions. It is the
// Dispatcher a Reassembler is constructed with.
type DeliveryDispatcher struct {
	Local   LocalHandler
	Tunnels TunnelInjector
	Router  RouterTransport
	Logger  *slog.Logger
}

// Dispatch implements Dispatcher.
func (d *DeliveryDispatcher) Dispatch(ctx context.Context, instructions DeliveryInstructions, body []byte) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	switch instructions.DeliveryType {
	case DeliveryLocal:
		if d.Local == nil {
			return fmt.Errorf("tunnel: no local handler configured: %w", ErrUnknownDeliveryType)
		}
		return d.Local.HandleLocal(ctx, body)

	case DeliveryTunnel:
		if d.Tunnels == nil {
			return fmt.Errorf("tunnel: no tunnel injector configured: %w", ErrUnknownDeliveryType)
		}
		return d.Tunnels.InjectTunnel(ctx, instructions.TunnelID, instructions.Hash, body)

	case DeliveryRouter:
		if d.Router == nil {
			return fmt.Errorf("tunnel: no router transport configured: %w", ErrUnknownDeliveryType)
		}
		return d.Router.SendToRouter(ctx, instructions.Hash, body)

	default:
		logger.WarnContext(ctx, "unknown delivery type", slog.Any("delivery_type", instructions.DeliveryType))
		return ErrUnknownDeliveryType
	}
}

package relay

import (
	"context"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"

	"github.com/fluxe/core/internal/verifier"
	"github.com/fluxe/core/pkg/types"
)

// Gossip topics.
const (
	TransactionTopic = "fluxe/transactions/1.0.0"
	BlockTopic       = "fluxe/blocks/1.0.0"
)

// TransactionHandler receives decoded inbound transactions.
type TransactionHandler func(ctx context.Context, tx *verifier.Transaction) error

// BlockHandler receives decoded inbound block headers.
type BlockHandler func(ctx context.Context, header *types.BlockHeader) error

// Config holds relay configuration.
type Config struct {
	ListenAddrs    []string
	BootstrapPeers []string
	PrivateKey     p2pcrypto.PrivKey
}

// DefaultConfig returns the default relay configuration.
func DefaultConfig() *Config {
	return &Config{
		ListenAddrs: []string{"/ip4/0.0.0.0/tcp/9470"},
	}
}

// Node is a gossip relay participant.
type Node struct {
	mu sync.RWMutex

	host   host.Host
	pubsub *pubsub.PubSub

	txTopic    *pubsub.Topic
	blockTopic *pubsub.Topic

	txSub    *pubsub.Subscription
	blockSub *pubsub.Subscription

	txHandler    TransactionHandler
	blockHandler BlockHandler

	ctx    context.Context
	cancel context.CancelFunc

	log zerolog.Logger
}

// NewNode starts a libp2p host, joins the gossip topics and begins
// dispatching inbound messages.
func NewNode(ctx context.Context, cfg *Config, log zerolog.Logger) (*Node, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	nodeCtx, cancel := context.WithCancel(ctx)

	privKey := cfg.PrivateKey
	if privKey == nil {
		var err error
		privKey, _, err = p2pcrypto.GenerateKeyPairWithReader(p2pcrypto.Ed25519, -1, rand.Reader)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("generate relay key: %w", err)
		}
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrStrings(cfg.ListenAddrs...),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create host: %w", err)
	}

	ps, err := pubsub.NewGossipSub(nodeCtx, h)
	if err != nil {
		h.Close()
		cancel()
		return nil, fmt.Errorf("create pubsub: %w", err)
	}

	node := &Node{
		host:   h,
		pubsub: ps,
		ctx:    nodeCtx,
		cancel: cancel,
		log:    log.With().Str("component", "relay").Logger(),
	}

	if node.txTopic, err = ps.Join(TransactionTopic); err != nil {
		node.Close()
		return nil, fmt.Errorf("join %s: %w", TransactionTopic, err)
	}
	if node.blockTopic, err = ps.Join(BlockTopic); err != nil {
		node.Close()
		return nil, fmt.Errorf("join %s: %w", BlockTopic, err)
	}

	if node.txSub, err = node.txTopic.Subscribe(); err != nil {
		node.Close()
		return nil, fmt.Errorf("subscribe %s: %w", TransactionTopic, err)
	}
	if node.blockSub, err = node.blockTopic.Subscribe(); err != nil {
		node.Close()
		return nil, fmt.Errorf("subscribe %s: %w", BlockTopic, err)
	}

	for _, addr := range cfg.BootstrapPeers {
		if err := node.connectPeer(addr); err != nil {
			node.log.Warn().Str("peer", addr).Err(err).Msg("bootstrap dial failed")
		}
	}

	go node.readTransactions()
	go node.readBlocks()

	node.log.Info().Str("peer_id", h.ID().String()).Msg("relay started")
	return node, nil
}

// SetTransactionHandler installs the inbound transaction callback.
func (n *Node) SetTransactionHandler(handler TransactionHandler) {
	n.mu.Lock()
	n.txHandler = handler
	n.mu.Unlock()
}

// SetBlockHandler installs the inbound block callback.
func (n *Node) SetBlockHandler(handler BlockHandler) {
	n.mu.Lock()
	n.blockHandler = handler
	n.mu.Unlock()
}

// PublishTransaction gossips a transaction envelope.
func (n *Node) PublishTransaction(ctx context.Context, tx *verifier.Transaction) error {
	raw, err := EncodeTransaction(tx)
	if err != nil {
		return err
	}
	return n.txTopic.Publish(ctx, raw)
}

// PublishBlockHeader gossips a sealed block header.
func (n *Node) PublishBlockHeader(ctx context.Context, header *types.BlockHeader) error {
	raw, err := EncodeBlockHeader(header)
	if err != nil {
		return err
	}
	return n.blockTopic.Publish(ctx, raw)
}

// PeerID returns the host identity.
func (n *Node) PeerID() peer.ID {
	return n.host.ID()
}

// Close shuts the relay down.
func (n *Node) Close() error {
	n.cancel()
	if n.txSub != nil {
		n.txSub.Cancel()
	}
	if n.blockSub != nil {
		n.blockSub.Cancel()
	}
	return n.host.Close()
}

func (n *Node) connectPeer(addr string) error {
	info, err := peer.AddrInfoFromString(addr)
	if err != nil {
		return err
	}
	return n.host.Connect(n.ctx, *info)
}

func (n *Node) readTransactions() {
	for {
		msg, err := n.txSub.Next(n.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}

		tx, err := DecodeTransaction(msg.Data)
		if err != nil {
			n.log.Warn().Err(err).Msg("dropping malformed transaction")
			continue
		}

		n.mu.RLock()
		handler := n.txHandler
		n.mu.RUnlock()
		if handler == nil {
			continue
		}
		if err := handler(n.ctx, tx); err != nil {
			n.log.Warn().Err(err).Msg("transaction handler rejected message")
		}
	}
}

func (n *Node) readBlocks() {
	for {
		msg, err := n.blockSub.Next(n.ctx)
		if err != nil {
			return
		}
		if msg.ReceivedFrom == n.host.ID() {
			continue
		}

		header, err := DecodeBlockHeader(msg.Data)
		if err != nil {
			n.log.Warn().Err(err).Msg("dropping malformed block header")
			continue
		}

		n.mu.RLock()
		handler := n.blockHandler
		n.mu.RUnlock()
		if handler == nil {
			continue
		}
		if err := handler(n.ctx, header); err != nil {
			n.log.Warn().Err(err).Msg("block handler rejected message")
		}
	}
}

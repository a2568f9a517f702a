package cas

import (
	"context"
	"fmt"

	"github.com/ceramicnetwork/anchor-syncer/src/utils/build_info"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/logger"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Downloads anchor proof payloads from the anchor service gateway.
// Proofs are addressed by the Merkle root the anchor commits to.
type Client struct {
	client *resty.Client
	config *config.Config
	log    *logrus.Entry

	limiter *rate.Limiter

	// Proofs are immutable, so they are cached by root
	proofCache *cache.Cache
}

func NewClient(config *config.Config) (self *Client) {
	self = new(Client)
	self.config = config
	self.log = logger.NewSublogger("cas-client")

	self.limiter = rate.NewLimiter(rate.Every(config.Cas.RateLimitInterval), config.Cas.RateLimitBurst)
	self.proofCache = cache.New(config.Cas.CacheTtl, config.Cas.CacheCleanupInterval)

	self.client =
		resty.New().
			SetBaseURL(config.Cas.Url).
			SetTimeout(config.Cas.RequestTimeout).
			SetHeader("User-Agent", "ceramicnetwork/anchor-syncer/"+build_info.Version).
			SetRetryCount(1).
			AddRetryAfterErrorCondition().
			OnBeforeRequest(self.onRateLimit).
			OnAfterResponse(self.onStatusToError)

	return
}

func (self *Client) onRateLimit(c *resty.Client, req *resty.Request) (err error) {
	err = self.limiter.Wait(req.Context())
	if err != nil {
		self.log.WithError(err).Debug("Rate limiting interrupted")
	}
	return
}

func (self *Client) onStatusToError(c *resty.Client, resp *resty.Response) error {
	// Non-success status code turns into an error
	if resp.IsSuccess() {
		return nil
	}
	return fmt.Errorf("unexpected status: %s", resp.Status())
}

// Gets the proof payload for the given root, opaque bytes for the caller
func (self *Client) GetProof(ctx context.Context, root string) (out []byte, err error) {
	if cached, ok := self.proofCache.Get(root); ok {
		out = cached.([]byte)
		return
	}

	resp, err := self.client.R().
		SetContext(ctx).
		SetPathParam("root", root).
		Get("/api/v0/proofs/{root}")
	if err != nil {
		return
	}

	out = resp.Body()
	self.proofCache.Set(root, out, cache.DefaultExpiration)
	return
}

package presenter

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/omni/transfer-indexer/entity"
	"github.com/omni/transfer-indexer/logging"
	mw "github.com/omni/transfer-indexer/presenter/http/middleware"
	"github.com/omni/transfer-indexer/presenter/http/render"
	"github.com/omni/transfer-indexer/queue"
)

const defaultFailedJobsLimit = 50

type Presenter struct {
	logger    logging.Logger
	chainID   string
	transfers entity.TransfersRepo
	broker    queue.Broker
	root      chi.Router
}

func NewPresenter(logger logging.Logger, chainID string, transfers entity.TransfersRepo, broker queue.Broker) *Presenter {
	p := &Presenter{
		logger:    logger,
		chainID:   chainID,
		transfers: transfers,
		broker:    broker,
		root:      chi.NewMux(),
	}
	p.root.Use(middleware.Throttle(5))
	p.root.Use(middleware.RequestID)
	p.root.Use(mw.NewLoggerMiddleware(p.logger))
	p.root.Use(mw.Recoverer)
	p.root.With(mw.GetPaginationMiddleware).Get("/transfers", p.ListTransfers)
	p.root.Get("/transfers/{txHash}", p.GetTransfer)
	if broker != nil {
		p.root.With(mw.GetPaginationMiddleware).Get("/queue/failed", p.ListFailedJobs)
	}
	return p
}

func (p *Presenter) Handler() http.Handler {
	return p.root
}

func (p *Presenter) Serve(addr string) error {
	p.logger.WithField("addr", addr).Info("starting presenter service")
	return http.ListenAndServe(addr, p.root)
}

func (p *Presenter) ListTransfers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	page := mw.GetPagination(ctx)

	transfers, err := p.transfers.FindAll(ctx, page.Offset(), page.Limit)
	if err != nil {
		render.Error(w, r, fmt.Errorf("can't find transfers: %w", err))
		return
	}
	count, err := p.transfers.Count(ctx)
	if err != nil {
		render.Error(w, r, fmt.Errorf("can't count transfers: %w", err))
		return
	}

	res := &TransfersPage{
		Data:  make([]*TransferInfo, len(transfers)),
		Count: count,
	}
	for i, transfer := range transfers {
		res.Data[i] = transferToInfo(p.chainID, transfer)
	}
	render.JSON(w, r, http.StatusOK, res)
}

func (p *Presenter) GetTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	txHash := strings.ToLower(chi.URLParam(r, "txHash"))

	transfer, err := p.transfers.GetByTxHash(ctx, txHash)
	if err != nil {
		render.Error(w, r, fmt.Errorf("transfer with hash %s: %w", txHash, err))
		return
	}
	render.JSON(w, r, http.StatusOK, transferToInfo(p.chainID, transfer))
}

// ListFailedJobs shows jobs that exhausted their attempts, most recent first.
func (p *Presenter) ListFailedJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := defaultFailedJobsLimit
	if r.URL.Query().Get("limit") != "" {
		limit = int(mw.GetPagination(ctx).Limit)
	}

	jobs, err := p.broker.Failed(ctx, limit)
	if err != nil {
		render.Error(w, r, fmt.Errorf("can't get failed jobs: %w", err))
		return
	}
	stats, err := p.broker.Stats(ctx)
	if err != nil {
		render.Error(w, r, fmt.Errorf("can't get queue stats: %w", err))
		return
	}

	res := &FailedJobsResult{
		Queue: p.broker.Name(),
		Stats: stats,
		Jobs:  make([]FailedJobInfo, len(jobs)),
	}
	for i, job := range jobs {
		res.Jobs[i] = jobToFailedJobInfo(job)
	}
	render.JSON(w, r, http.StatusOK, res)
}

package indexer_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/omni/transfer-indexer/contract"
	"github.com/omni/transfer-indexer/contract/abi"
	"github.com/omni/transfer-indexer/db"
	"github.com/omni/transfer-indexer/entity"
	"github.com/omni/transfer-indexer/indexer"
	"github.com/omni/transfer-indexer/queue"
)

const testChainID = "1"

var (
	tokenAddr = common.HexToAddress("0x1f9840a85d5af5bf1d1762f925bdaddc4201f984")
	aliceAddr = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bobAddr   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	errRPC    = errors.New("rpc is unavailable")
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func txHash(block uint) common.Hash {
	return common.BigToHash(big.NewInt(int64(block) + 0xabc000))
}

func transferLog(block uint) types.Log {
	topic, err := abi.ERC20.EventTopic("Transfer")
	if err != nil {
		panic(err)
	}
	return types.Log{
		Address:     tokenAddr,
		Topics:      []common.Hash{topic, aliceAddr.Hash(), bobAddr.Hash()},
		Data:        common.BigToHash(big.NewInt(int64(block) * 1000)).Bytes(),
		BlockNumber: uint64(block),
		TxHash:      txHash(block),
	}
}

type fakeSubscription struct {
	once  sync.Once
	errCh chan error
}

func newFakeSubscription() *fakeSubscription {
	return &fakeSubscription{errCh: make(chan error, 1)}
}

func (s *fakeSubscription) Err() <-chan error {
	return s.errCh
}

func (s *fakeSubscription) Unsubscribe() {
	s.once.Do(func() {
		close(s.errCh)
	})
}

type fakeClient struct {
	mu            sync.Mutex
	head          uint
	logs          []types.Log
	headerErr     error
	headerCalls   int
	failingRanges map[indexer.BlocksRange]int
	queries       []indexer.BlocksRange
	subscriptions []*fakeSubscription
	subscribers   []chan<- types.Log
}

func newFakeClient(head uint, blocks ...uint) *fakeClient {
	c := &fakeClient{
		head:          head,
		failingRanges: make(map[indexer.BlocksRange]int),
	}
	for _, block := range blocks {
		c.logs = append(c.logs, transferLog(block))
	}
	return c
}

func (c *fakeClient) ChainID() string {
	return testChainID
}

func (c *fakeClient) BlockNumber(context.Context) (uint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

func (c *fakeClient) HeaderByNumber(_ context.Context, n uint) (*types.Header, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headerCalls++
	if c.headerErr != nil {
		return nil, c.headerErr
	}
	return &types.Header{
		Number: big.NewInt(int64(n)),
		Time:   blockTime(n),
	}, nil
}

func blockTime(n uint) uint64 {
	return 1600000000 + uint64(n)*12
}

func (c *fakeClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := indexer.BlocksRange{From: uint(q.FromBlock.Uint64()), To: uint(q.ToBlock.Uint64())}
	c.queries = append(c.queries, r)
	if c.failingRanges[r] > 0 {
		c.failingRanges[r]--
		return nil, errRPC
	}
	var res []types.Log
	for _, log := range c.logs {
		if uint(log.BlockNumber) >= r.From && uint(log.BlockNumber) <= r.To {
			res = append(res, log)
		}
	}
	return res, nil
}

func (c *fakeClient) FilterLogsSafe(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return c.FilterLogs(ctx, q)
}

func (c *fakeClient) SubscribeFilterLogs(_ context.Context, _ ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	sub := newFakeSubscription()
	c.subscriptions = append(c.subscriptions, sub)
	c.subscribers = append(c.subscribers, ch)
	return sub, nil
}

func (c *fakeClient) Close() {}

func (c *fakeClient) Queries() []indexer.BlocksRange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]indexer.BlocksRange(nil), c.queries...)
}

func (c *fakeClient) Subscriptions() []*fakeSubscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*fakeSubscription(nil), c.subscriptions...)
}

func (c *fakeClient) Publish(log types.Log) {
	c.mu.Lock()
	ch := c.subscribers[len(c.subscribers)-1]
	c.mu.Unlock()
	ch <- log
}

type fakeTransfersRepo struct {
	mu          sync.Mutex
	transfers   map[string]*entity.Transfer
	ensureCalls int
	ensureErrs  int
}

func newFakeTransfersRepo(blocks ...uint) *fakeTransfersRepo {
	r := &fakeTransfersRepo{transfers: make(map[string]*entity.Transfer)}
	for _, block := range blocks {
		r.transfers[txHash(block).Hex()] = &entity.Transfer{
			TransactionHash: txHash(block).Hex(),
			BlockNumber:     block,
		}
	}
	return r
}

func (r *fakeTransfersRepo) Ensure(_ context.Context, transfer *entity.Transfer) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureCalls++
	if r.ensureErrs > 0 {
		r.ensureErrs--
		return false, errors.New("connection refused")
	}
	if _, ok := r.transfers[transfer.TransactionHash]; ok {
		return false, nil
	}
	now := time.Now()
	res := *transfer
	res.CreatedAt = &now
	r.transfers[transfer.TransactionHash] = &res
	return true, nil
}

func (r *fakeTransfersRepo) GetByTxHash(_ context.Context, hash string) (*entity.Transfer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if transfer, ok := r.transfers[hash]; ok {
		return transfer, nil
	}
	return nil, db.ErrNotFound
}

func (r *fakeTransfersRepo) FindAll(_ context.Context, offset, limit uint) ([]*entity.Transfer, error) {
	all := r.All()
	sort.Slice(all, func(i, j int) bool {
		return all[i].BlockNumber > all[j].BlockNumber
	})
	if offset >= uint(len(all)) {
		return nil, nil
	}
	all = all[offset:]
	if limit < uint(len(all)) {
		all = all[:limit]
	}
	return all, nil
}

func (r *fakeTransfersRepo) Count(context.Context) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint(len(r.transfers)), nil
}

func (r *fakeTransfersRepo) MaxBlockNumber(context.Context) (uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.transfers) == 0 {
		return 0, db.ErrNotFound
	}
	res := uint(0)
	for _, transfer := range r.transfers {
		if transfer.BlockNumber > res {
			res = transfer.BlockNumber
		}
	}
	return res, nil
}

func (r *fakeTransfersRepo) FindWithoutDate(_ context.Context, limit uint) ([]*entity.Transfer, error) {
	var res []*entity.Transfer
	for _, transfer := range r.All() {
		if transfer.TransactionDate == nil && uint(len(res)) < limit {
			res = append(res, transfer)
		}
	}
	return res, nil
}

func (r *fakeTransfersRepo) SetTransactionDate(_ context.Context, hash string, date time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if transfer, ok := r.transfers[hash]; ok && transfer.TransactionDate == nil {
		transfer.TransactionDate = &date
	}
	return nil
}

func (r *fakeTransfersRepo) All() []*entity.Transfer {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]*entity.Transfer, 0, len(r.transfers))
	for _, transfer := range r.transfers {
		res = append(res, transfer)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].BlockNumber < res[j].BlockNumber
	})
	return res
}

func (r *fakeTransfersRepo) Blocks() []uint {
	var res []uint
	for _, transfer := range r.All() {
		res = append(res, transfer.BlockNumber)
	}
	return res
}

type fakeBlockTimestampsRepo struct {
	mu     sync.Mutex
	blocks map[uint]time.Time
}

func newFakeBlockTimestampsRepo() *fakeBlockTimestampsRepo {
	return &fakeBlockTimestampsRepo{blocks: make(map[uint]time.Time)}
}

func (r *fakeBlockTimestampsRepo) Ensure(_ context.Context, ts *entity.BlockTimestamp) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks[ts.BlockNumber] = ts.Timestamp
	return nil
}

func (r *fakeBlockTimestampsRepo) GetByBlockNumber(_ context.Context, chainID string, blockNumber uint) (*entity.BlockTimestamp, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ts, ok := r.blocks[blockNumber]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &entity.BlockTimestamp{ChainID: chainID, BlockNumber: blockNumber, Timestamp: ts}, nil
}

func (r *fakeBlockTimestampsRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.blocks)
}

type fakeLogsCursorsRepo struct {
	mu      sync.Mutex
	cursors map[string]uint
}

func newFakeLogsCursorsRepo() *fakeLogsCursorsRepo {
	return &fakeLogsCursorsRepo{cursors: make(map[string]uint)}
}

func (r *fakeLogsCursorsRepo) Ensure(_ context.Context, cursor *entity.LogsCursor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := cursor.ChainID + cursor.Address
	if cursor.LastScannedBlock > r.cursors[key] {
		r.cursors[key] = cursor.LastScannedBlock
	}
	return nil
}

func (r *fakeLogsCursorsRepo) GetByChainIDAndAddress(_ context.Context, chainID string, addr string) (*entity.LogsCursor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	block, ok := r.cursors[chainID+addr]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &entity.LogsCursor{ChainID: chainID, Address: addr, LastScannedBlock: block}, nil
}

func (r *fakeLogsCursorsRepo) set(block uint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursors[testChainID+tokenAddr.String()] = block
}

func (r *fakeLogsCursorsRepo) get() (uint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	block, ok := r.cursors[testChainID+tokenAddr.String()]
	return block, ok
}

type testEnv struct {
	client     *fakeClient
	transfers  *fakeTransfersRepo
	timestamps *fakeBlockTimestampsRepo
	cursors    *fakeLogsCursorsRepo
	broker     *queue.MemoryBroker
	resolver   *indexer.TimestampResolver
	persister  *indexer.Persister
	worker     *queue.Worker
	subscriber *indexer.Subscriber
	scanner    *indexer.Scanner
}

func newTestEnv(client *fakeClient, transfers *fakeTransfersRepo, startBlock uint) *testEnv {
	logger := testLogger()
	env := &testEnv{
		client:     client,
		transfers:  transfers,
		timestamps: newFakeBlockTimestampsRepo(),
		cursors:    newFakeLogsCursorsRepo(),
		broker: queue.NewMemoryBroker("transfers-test", queue.Options{
			MaxAttempts:  5,
			Backoff:      time.Millisecond,
			LeaseTimeout: time.Minute,
		}),
	}
	erc20 := contract.NewERC20Contract(tokenAddr)
	enqueuer := indexer.NewEnqueuer(logger, env.broker)
	cursor := indexer.NewCursorStore(logger, transfers, env.cursors, testChainID, tokenAddr, startBlock)
	env.resolver = indexer.NewTimestampResolver(logger, client, env.timestamps)
	env.persister = indexer.NewPersister(logger, transfers, env.resolver)
	env.worker = queue.NewWorker(logger, env.broker, env.persister.Handle, 1, time.Millisecond)
	env.subscriber = indexer.NewSubscriber(logger, client, erc20, enqueuer, indexer.SubscriberOptions{
		RetryInterval:      time.Millisecond,
		ResubscribeBackoff: 10 * time.Millisecond,
	})
	env.scanner = indexer.NewScanner(logger, client, erc20, enqueuer, cursor, indexer.ScannerOptions{
		ChunkSize:     100,
		ChunkInterval: time.Millisecond,
		RetryInterval: time.Millisecond,
	})
	return env
}

// drain processes queued jobs until the queue has nothing ready.
func (e *testEnv) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 1000; i++ {
		processed, err := e.worker.ProcessNext(context.Background())
		require.NoError(t, err)
		if !processed {
			return
		}
	}
	require.FailNow(t, "queue was not drained")
}

func requireContiguous(t *testing.T, ranges []indexer.BlocksRange, from, to uint) {
	t.Helper()
	require.NotEmpty(t, ranges)
	require.Equal(t, from, ranges[0].From, "first range")
	require.Equal(t, to, ranges[len(ranges)-1].To, "last range")
	for i := 1; i < len(ranges); i++ {
		require.Equal(t, ranges[i-1].To+1, ranges[i].From, fmt.Sprintf("gap between %v and %v", ranges[i-1], ranges[i]))
	}
}

package subgraph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"infrafi/native/lending"
)

type graphQLHandler func(t *testing.T, req graphQLRequest) string

func newTestClient(t *testing.T, handler graphQLHandler, mutate ...func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req graphQLRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(handler(t, req)))
	}))
	t.Cleanup(srv.Close)
	cfg := Config{Endpoint: srv.URL}
	for _, fn := range mutate {
		fn(&cfg)
	}
	client, err := NewClient(cfg)
	require.NoError(t, err)
	return client
}

func TestNewClientValidatesEndpoint(t *testing.T) {
	for _, endpoint := range []string{"", "   ", "ftp://example.com", "not a url"} {
		_, err := NewClient(Config{Endpoint: endpoint})
		require.Error(t, err, endpoint)
	}
}

func TestProtocol(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, req graphQLRequest) string {
		require.Contains(t, req.Query, "protocol(id: \"1\")")
		return `{"data":{"protocol":{
			"totalLiquidity":"1500000000000000000000",
			"totalDebt":"750000000000000000000",
			"totalCollateralValue":"2000000000000000000000",
			"totalNodesDeposited":"3",
			"supplyAPY":"412",
			"borrowAPY":860,
			"utilizationRate":"5000",
			"totalUsers":"7",
			"totalLenders":"4",
			"totalBorrowers":"2",
			"lastUpdateTimestamp":"1700000000"}}}`
	})
	snap, err := client.Protocol(context.Background())
	require.NoError(t, err)
	require.Equal(t, "1500.000000000000000000", lending.ToDecimalString(snap.TotalLiquidity, 18))
	require.Equal(t, lending.BasisPoints(412), snap.SupplyAPY)
	require.Equal(t, lending.BasisPoints(860), snap.BorrowAPY)
	require.Equal(t, lending.BasisPoints(5000), snap.UtilizationRate)
	require.Equal(t, uint64(3), snap.TotalNodesDeposited)
	require.Equal(t, int64(1_700_000_000), snap.LastUpdateTimestamp)
}

func TestProtocolNotFound(t *testing.T) {
	client := newTestClient(t, func(*testing.T, graphQLRequest) string {
		return `{"data":{"protocol":null}}`
	})
	_, err := client.Protocol(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestQueryReportsGraphQLErrors(t *testing.T) {
	client := newTestClient(t, func(*testing.T, graphQLRequest) string {
		return `{"errors":[{"message":"indexing_error"},{"message":"store error"}]}`
	})
	_, err := client.Protocol(context.Background())
	var gqlErrs GraphQLErrors
	require.True(t, errors.As(err, &gqlErrs))
	require.Len(t, gqlErrs, 2)
	require.Contains(t, err.Error(), "indexing_error")
}

func TestQueryHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = client.Protocol(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestUserPositionLowercasesAddress(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, req graphQLRequest) string {
		require.Equal(t, "0xabcdef0000000000000000000000000000000001", req.Variables["address"])
		return `{"data":{"user":{
			"address":"0xabcdef0000000000000000000000000000000001",
			"totalSupplied":"100000000000000000000",
			"totalSupplyInterest":"1000000000000000000",
			"totalBorrowed":"60000000000000000000",
			"totalBorrowInterest":"15000000000000000000",
			"collateralValue":"100000000000000000000",
			"depositedNodesCount":"2",
			"isLender":true,
			"isBorrower":true,
			"firstInteractionTimestamp":"1699990000",
			"lastInteractionTimestamp":"1700000000"}}}`
	})
	user, err := client.UserPosition(context.Background(), "  0xABCDEF0000000000000000000000000000000001 ")
	require.NoError(t, err)
	require.True(t, user.IsBorrower)
	require.Equal(t, uint64(2), user.DepositedNodesCount)
	pos := user.Position()
	require.Equal(t, float64(75), pos.LTV())
	require.Equal(t, float64(1), pos.HealthFactor(75))
}

func TestUserPositionNotFound(t *testing.T) {
	client := newTestClient(t, func(*testing.T, graphQLRequest) string {
		return `{"data":{"user":null}}`
	})
	_, err := client.UserPosition(context.Background(), "0x01")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUserTimelineMergesNestedAndDirectEvents(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, req graphQLRequest) string {
		require.Contains(t, req.Query, "nodeDeposits(first: $first")
		require.Contains(t, req.Query, "nodeDepositEvents(where: { user: $user }")
		return `{"data":{
			"user":{
				"address":"0xaa",
				"totalSupplied":"5",
				"supplyEvents":[{"id":"s1","amount":"100","timestamp":"30","blockNumber":"3","transactionHash":"0x1"}],
				"withdrawEvents":[],
				"borrowEvents":[{"id":"b1","amount":"40","timestamp":"50","blockNumber":"5","transactionHash":"0x2"}],
				"repayEvents":[],
				"nodeDeposits":[{"id":"n1","nodeId":"7","nodeType":"storage","assetValue":"500","timestamp":"10","blockNumber":"1","transactionHash":"0x3"}],
				"nodeWithdrawals":[]
			},
			"supplyEvents":[
				{"id":"s1","amount":"100","timestamp":"30","blockNumber":"3","transactionHash":"0x1"},
				{"id":"s2","amount":"20","timestamp":"60","blockNumber":"6","transactionHash":"0x4"},
				{"id":"bad","amount":"-1","timestamp":"61","blockNumber":"6","transactionHash":"0x5"}
			],
			"withdrawEvents":[],
			"borrowEvents":[],
			"repayEvents":[{"id":"r1","amount":"10","timestamp":null,"transactionHash":"0x6"}],
			"nodeDepositEvents":[],
			"nodeWithdrawalEvents":[{"id":"w1","nodeId":"7","nodeType":"storage","timestamp":"70","blockNumber":"7","transactionHash":"0x7"}]
		}}`
	})
	timeline, err := client.UserTimeline(context.Background(), "0xAA", 100)
	require.NoError(t, err)
	require.NotNil(t, timeline.User)

	ids := make([]string, 0, len(timeline.Events))
	for _, ev := range timeline.Events {
		ids = append(ids, ev.ID)
		require.Equal(t, "0xaa", ev.User)
	}
	require.Equal(t, []string{"n1", "s1", "b1", "s2", "w1"}, ids)
	require.Equal(t, lending.EventNodeDeposit, timeline.Events[0].Kind)
	require.Equal(t, "500", timeline.Events[0].Value().ToBig().String())
	require.True(t, timeline.Events[4].Value().IsZero())
}

func TestUserTimelineUnknownUser(t *testing.T) {
	client := newTestClient(t, func(*testing.T, graphQLRequest) string {
		return `{"data":{"user":null,"supplyEvents":[],"withdrawEvents":[],"borrowEvents":[],"repayEvents":[],"nodeDepositEvents":[],"nodeWithdrawalEvents":[]}}`
	})
	timeline, err := client.UserTimeline(context.Background(), "0xbb", 0)
	require.NoError(t, err)
	require.Nil(t, timeline.User)
	require.Empty(t, timeline.Events)
}

func TestDailySnapshots(t *testing.T) {
	client := newTestClient(t, func(t *testing.T, req graphQLRequest) string {
		require.EqualValues(t, 30, req.Variables["days"])
		return `{"data":{"dailySnapshots":[
			{"date":"172800","totalLiquidity":"2000","supplyAPY":"320","suppliesCount":"4","supplyVolume":"900"},
			{"date":null,"totalLiquidity":"1"},
			{"date":"86400","totalLiquidity":"1000","supplyAPY":"300","borrowsCount":"2"}
		]}}`
	})
	snaps, err := client.DailySnapshots(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.Equal(t, int64(172800), snaps[0].Date)
	require.Equal(t, uint64(4), snaps[0].Counts.Supplies)
	require.Equal(t, uint64(2), snaps[1].Counts.Borrows)
	require.Equal(t, "900", snaps[0].SupplyVolume.ToBig().String())
}

func TestRateSnapshotsDefaultIndexes(t *testing.T) {
	client := newTestClient(t, func(*testing.T, graphQLRequest) string {
		return `{"data":{"interestRateSnapshots":[
			{"id":"r2","timestamp":"200","blockNumber":"20","supplyAPY":"310","borrowAPY":"520","utilizationRate":"6100","borrowIndex":"1050000000000000000"},
			{"id":"r1","timestamp":"100","blockNumber":"10","supplyAPY":"300","borrowAPY":"500","utilizationRate":"6000"}
		]}}`
	})
	snaps, err := client.RateSnapshots(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	require.Equal(t, "1.050000000000000000", lending.ToDecimalString(snaps[0].BorrowIndex, 18))
	require.Equal(t, "1.000000000000000000", lending.ToDecimalString(snaps[0].SupplyIndex, 18))
	require.Equal(t, "1.000000000000000000", lending.ToDecimalString(snaps[1].BorrowIndex, 18))
}

func TestEventsSincePagesEachCollection(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(t *testing.T, req graphQLRequest) string {
		calls.Add(1)
		require.EqualValues(t, 1000, req.Variables["startTime"])
		if !strings.Contains(req.Query, "supplyEvents(") {
			return `{"data":{}}`
		}
		switch int(req.Variables["skip"].(float64)) {
		case 0:
			return `{"data":{"supplyEvents":[
				{"id":"a","user":{"address":"0x1"},"amount":"1","timestamp":"1002","blockNumber":"2","transactionHash":"0xa"},
				{"id":"b","user":{"address":"0x2"},"amount":"2","timestamp":"1001","blockNumber":"1","transactionHash":"0xb"}
			]}}`
		default:
			return `{"data":{"supplyEvents":[
				{"id":"c","user":{"address":"0x3"},"amount":"3","timestamp":"1003","blockNumber":"3","transactionHash":"0xc"}
			]}}`
		}
	}, func(cfg *Config) { cfg.PageSize = 2 })

	events, err := client.EventsSince(context.Background(), 1000)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "b", events[0].ID)
	require.Equal(t, "c", events[2].ID)
	require.Equal(t, "0x3", events[2].User)
	// two supply pages plus one page for each remaining collection
	require.EqualValues(t, 7, calls.Load())
}

func TestQueryRespectsContextCancellation(t *testing.T) {
	client := newTestClient(t, func(*testing.T, graphQLRequest) string {
		return `{"data":{"protocol":null}}`
	}, func(cfg *Config) {
		cfg.RequestsPerSecond = 0.001
		cfg.Burst = 1
	})
	ctx, cancel := context.WithCancel(context.Background())
	_, err := client.Protocol(ctx)
	require.ErrorIs(t, err, ErrNotFound)
	cancel()
	_, err = client.Protocol(ctx)
	require.Error(t, err)
	require.ErrorIs(t, err, context.Canceled)
}

package mocks

import (
	"context"

	"github.com/Verdenroz/champion-recap/internal/api"

	"github.com/stretchr/testify/mock"
)

// MockRiotClient is a mock implementation of api.ClientInterface
type MockRiotClient struct {
	mock.Mock
}

func (m *MockRiotClient) ResolveAccount(ctx context.Context, platform, gameName, tagLine string) (*api.AccountDto, error) {
	args := m.Called(ctx, platform, gameName, tagLine)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.AccountDto), args.Error(1)
}

func (m *MockRiotClient) GetSummoner(ctx context.Context, platform, puuid string) (*api.SummonerDto, error) {
	args := m.Called(ctx, platform, puuid)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*api.SummonerDto), args.Error(1)
}

func (m *MockRiotClient) ListMatchIDs(ctx context.Context, platform, puuid string, startTime, endTime int64, start, count int) ([]string, error) {
	args := m.Called(ctx, platform, puuid, startTime, endTime, start, count)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRiotClient) FetchMatch(ctx context.Context, platform, matchID string) (*api.MatchDto, []byte, error) {
	args := m.Called(ctx, platform, matchID)
	var match *api.MatchDto
	if args.Get(0) != nil {
		match = args.Get(0).(*api.MatchDto)
	}
	var raw []byte
	if args.Get(1) != nil {
		raw = args.Get(1).([]byte)
	}
	return match, raw, args.Error(2)
}

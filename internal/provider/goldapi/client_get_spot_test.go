package goldapi_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	goldapi "goldfeed/internal/provider/goldapi"
)

func TestGetSpot(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "test-token", req.Header.Get("x-access-token"))
			require.Contains(t, req.URL.Path, "/XAU/USD")

			buffer := &bytes.Buffer{}
			require.NoError(t, json.NewEncoder(buffer).Encode(mockSpotResponse))

			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(buffer),
			}, nil
		}).
		Times(1)

	// Arrange: setup a new GoldAPI client
	client, err := goldapi.NewGoldAPIClient("test-token", goldapi.WithHTTPClient(httpClient))
	require.NoError(t, err)
	require.NotNil(t, client)

	// Act: call GetSpot
	spot, err := client.GetSpot(t.Context(), "XAU", "USD")
	require.NoError(t, err)

	// Assert: the spot should be unmarshalled from the mock response
	require.Equal(t, "XAU", spot.Metal)
	require.Equal(t, "USD", spot.Currency)
	require.InEpsilon(t, 2412.35, spot.Price, 0.0001)
	require.InEpsilon(t, 2413.1, spot.Ask, 0.0001)
	require.InEpsilon(t, 2411.6, spot.Bid, 0.0001)
	require.Equal(t, time.Date(2024, 7, 17, 13, 53, 47, 0, time.UTC), spot.Time())
}

func TestGetSpot_ErrPerformingRequest(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return nil, fmt.Errorf("error")
		}).
		Times(1)

	// Arrange: setup a new GoldAPI client
	client, err := goldapi.NewGoldAPIClient("test-token", goldapi.WithHTTPClient(httpClient))
	require.NoError(t, err)
	require.NotNil(t, client)

	// Act: call GetSpot
	_, err = client.GetSpot(t.Context(), "XAU", "USD")
	require.Error(t, err)
}

func TestGetSpot_ErrUnauthorized(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusUnauthorized,
				Body:       io.NopCloser(bytes.NewReader([]byte{})),
			}, nil
		}).
		Times(1)

	// Arrange: setup a new GoldAPI client
	client, err := goldapi.NewGoldAPIClient("bad-token", goldapi.WithHTTPClient(httpClient))
	require.NoError(t, err)
	require.NotNil(t, client)

	// Act: call GetSpot
	_, err = client.GetSpot(t.Context(), "XAU", "USD")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unauthorized")
}

func TestGetSpot_ErrRateLimited(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusTooManyRequests,
				Body:       io.NopCloser(bytes.NewReader([]byte{})),
			}, nil
		}).
		Times(1)

	// Arrange: setup a new GoldAPI client
	client, err := goldapi.NewGoldAPIClient("test-token", goldapi.WithHTTPClient(httpClient))
	require.NoError(t, err)
	require.NotNil(t, client)

	// Act: call GetSpot
	_, err = client.GetSpot(t.Context(), "XAU", "USD")
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limited")
}

func TestGetSpot_ErrDecodingResponse(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			buffer := &bytes.Buffer{}
			buffer.WriteString("invalid json")

			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(buffer),
			}, nil
		}).
		Times(1)

	// Arrange: setup a new GoldAPI client
	client, err := goldapi.NewGoldAPIClient("test-token", goldapi.WithHTTPClient(httpClient))
	require.NoError(t, err)
	require.NotNil(t, client)

	// Act: call GetSpot
	_, err = client.GetSpot(t.Context(), "XAU", "USD")
	require.Error(t, err)
}

func TestGetSpot_ErrEmptyResponse(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: stub the Do method. The API reports errors as 200s with an
	// "error" field and no price.
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			buffer := &bytes.Buffer{}
			require.NoError(t, json.NewEncoder(buffer).Encode(map[string]any{
				"error": "no data for this pair",
			}))

			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(buffer),
			}, nil
		}).
		Times(1)

	// Arrange: setup a new GoldAPI client
	client, err := goldapi.NewGoldAPIClient("test-token", goldapi.WithHTTPClient(httpClient))
	require.NoError(t, err)
	require.NotNil(t, client)

	// Act: call GetSpot
	_, err = client.GetSpot(t.Context(), "XAU", "USD")
	require.Error(t, err)
}

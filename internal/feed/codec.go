package feed

import (
	"encoding/json"
	"fmt"

	"feedsync/internal/model"
)

// DecodeValue restores a persisted cache value for the endpoint that
// produced it.
func DecodeValue(endpoint string, data []byte) (any, error) {
	switch endpoint {
	case EndpointFeed, EndpointUserFeed, EndpointBookmarks:
		var page model.FeedPage
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("decode %s: %w", endpoint, err)
		}
		return &page, nil
	case EndpointOneArticle:
		var article model.Article
		if err := json.Unmarshal(data, &article); err != nil {
			return nil, fmt.Errorf("decode %s: %w", endpoint, err)
		}
		return &article, nil
	case EndpointOneUser:
		var user model.User
		if err := json.Unmarshal(data, &user); err != nil {
			return nil, fmt.Errorf("decode %s: %w", endpoint, err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("decode %s: unknown endpoint", endpoint)
	}
}

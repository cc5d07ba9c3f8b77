package recommendcmder_test

import (
	"net/http"
	"strings"
)

func chatRequest(from, to string) *http.Request {
	body := `{"sender_id": "` + from + `", "receiver_id": "` + to + `", "content": "hello"}`
	req, err := http.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	if err != nil {
		panic(err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req
}

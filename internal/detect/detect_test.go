package detect

import (
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kdimtricp/vtrack/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBBoxCenter(t *testing.T) {
	b := BBox{10, 20, 30, 41}
	assert.Equal(t, image.Pt(20, 30), b.Center())
}

func TestTrackedObjectJSON(t *testing.T) {
	objs := []TrackedObject{
		{BBox: BBox{1, 2, 3, 4}, Confidence: 0.5, ClassID: 0, ClassName: "person", TrackID: ID(7)},
		{BBox: BBox{5, 6, 7, 8}, Confidence: 0.25, ClassID: 2, ClassName: "car"},
	}
	b, err := json.Marshal(objs)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"bbox":[1,2,3,4],"confidence":0.5,"class_id":0,"class_name":"person","track_id":7},
		{"bbox":[5,6,7,8],"confidence":0.25,"class_id":2,"class_name":"car","track_id":null}
	]`, string(b))
	assert.True(t, objs[0].Tracked())
	assert.False(t, objs[1].Tracked())
}

func TestHTTPClientTrack(t *testing.T) {
	var gotSession, gotConf string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/track", r.URL.Path)
		assert.Equal(t, "image/jpeg", r.Header.Get("Content-Type"))
		_, err := jpeg.Decode(r.Body)
		assert.NoError(t, err)
		gotSession = r.URL.Query().Get("session")
		gotConf = r.URL.Query().Get("conf")
		json.NewEncoder(w).Encode(trackResponse{Objects: []TrackedObject{
			{BBox: BBox{0, 0, 10, 10}, Confidence: 0.9, ClassName: "person", TrackID: ID(1)},
			{BBox: BBox{0, 0, 5, 5}, Confidence: 0.1, ClassName: "dog"},
		}})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, time.Second)
	f := frame.New(image.NewRGBA(image.Rect(0, 0, 16, 16)), 0)

	objs, err := client.Session("job-1").Track(context.Background(), f, 0.4)
	require.NoError(t, err)
	require.Len(t, objs, 1)
	assert.Equal(t, "person", objs[0].ClassName)
	assert.Equal(t, "job-1", gotSession)
	assert.Equal(t, "0.4", gotConf)
}

func TestHTTPClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(trackResponse{Error: "model not loaded"})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL, time.Second)
	f := frame.New(image.NewRGBA(image.Rect(0, 0, 4, 4)), 0)
	_, err := client.Session("s").Track(context.Background(), f, 0.5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestNop(t *testing.T) {
	objs, err := Nop{}.Session("x").Track(context.Background(), nil, 0.5)
	require.NoError(t, err)
	assert.Empty(t, objs)
	assert.NotNil(t, objs)
}

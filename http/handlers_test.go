package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/roisanwr/Water-Potability-Clasification/db"
	"github.com/roisanwr/Water-Potability-Clasification/ml"
	"github.com/roisanwr/Water-Potability-Clasification/monitoring"
)

type fakePredictor struct {
	prediction ml.Prediction
	err        error
	calls      int
}

func (f *fakePredictor) Predict(values url.Values) (ml.Prediction, error) {
	f.calls++
	return f.prediction, f.err
}

type fakeHistory struct {
	mu      sync.Mutex
	records []db.Record
}

func (f *fakeHistory) Save(ctx context.Context, record db.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, record)
	return nil
}

func (f *fakeHistory) Recent(ctx context.Context, limit int) ([]db.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records, nil
}

type fakeFeed struct {
	http.Handler
	events []monitoring.VerdictEvent
}

func (f *fakeFeed) Publish(event monitoring.VerdictEvent) {
	f.events = append(f.events, event)
}

func sampleForm() url.Values {
	return url.Values{
		"ph":              {"7.0"},
		"Hardness":        {"200"},
		"Solids":          {"20000"},
		"Chloramines":     {"7.0"},
		"Sulfate":         {"330"},
		"Conductivity":    {"400"},
		"Organic_carbon":  {"15"},
		"Trihalomethanes": {"66"},
		"Turbidity":       {"4.0"},
	}
}

func newTestMux(t *testing.T, predictor Predictor, opts ...HandlerOption) *http.ServeMux {
	t.Helper()
	handler, err := NewHandler(predictor, "en", opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mux := http.NewServeMux()
	handler.Register(mux)
	return mux
}

func postForm(mux http.Handler, form url.Values, lang string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if lang != "" {
		req.Header.Set("Accept-Language", lang)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	req, err := http.NewRequest("GET", "/api/health", nil)
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	handler := http.HandlerFunc(handleHealth)

	handler.ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	expected := `{"status":"ok"}`
	if rr.Body.String() != expected+"\n" && rr.Body.String() != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}
}

func TestIndexHasNoVerdict(t *testing.T) {
	predictor := &fakePredictor{}
	mux := newTestMux(t, predictor)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if strings.Contains(body, `id="verdict"`) {
		t.Fatal("index page must not contain a verdict block")
	}
	for _, name := range ml.FeatureNames() {
		if !strings.Contains(body, `name="`+name+`"`) {
			t.Fatalf("form is missing field %s", name)
		}
	}
	if predictor.calls != 0 {
		t.Fatal("index must not run a prediction")
	}
}

func TestUnknownPathIsNotFound(t *testing.T) {
	mux := newTestMux(t, &fakePredictor{})
	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestPredictVerdicts(t *testing.T) {
	tests := []struct {
		name    string
		potable bool
		text    string
		style   string
	}{
		{"potable", true, "POTABLE (safe to drink)", StyleSafe},
		{"not potable", false, "NOT POTABLE (unsafe to drink)", StyleUnsafe},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			label := ml.LabelNotPotable
			if tt.potable {
				label = ml.LabelPotable
			}
			mux := newTestMux(t, &fakePredictor{prediction: ml.Prediction{Label: label, Potable: tt.potable}})

			w := postForm(mux, sampleForm(), "")
			if w.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", w.Code)
			}
			body := w.Body.String()
			if !strings.Contains(body, tt.text) {
				t.Fatalf("expected verdict %q in body", tt.text)
			}
			if !strings.Contains(body, `class="result-box `+tt.style+`"`) {
				t.Fatalf("expected style %q in body", tt.style)
			}
		})
	}
}

func TestPredictErrorIsRenderedInline(t *testing.T) {
	artifacts, err := ml.LoadArtifacts(ml.ModelTypeKNN, "../ml/testdata/knn_water_model.json", "../ml/testdata/scaler_water.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	predictor, err := ml.NewPredictor(artifacts, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mux := newTestMux(t, predictor)

	form := sampleForm()
	form.Set("Hardness", "abc")
	w := postForm(mux, form, "")

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "An error occurred:") || !strings.Contains(body, "Hardness") {
		t.Fatalf("expected inline error mentioning Hardness, got %s", body)
	}
	if !strings.Contains(body, `class="result-box unsafe"`) {
		t.Fatal("expected unsafe style for errors")
	}

	form.Del("Turbidity")
	w = postForm(mux, form, "")
	if !strings.Contains(w.Body.String(), `class="result-box unsafe"`) {
		t.Fatal("expected unsafe style for missing field")
	}
}

func TestPredictEndToEnd(t *testing.T) {
	artifacts, err := ml.LoadArtifacts(ml.ModelTypeKNN, "../ml/testdata/knn_water_model.json", "../ml/testdata/scaler_water.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	predictor, err := ml.NewPredictor(artifacts, 16)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mux := newTestMux(t, predictor)

	first := postForm(mux, sampleForm(), "").Body.String()
	second := postForm(mux, sampleForm(), "").Body.String()
	if !strings.Contains(first, `class="result-box safe"`) {
		t.Fatal("expected potable verdict")
	}
	if first != second {
		t.Fatal("identical submissions must render identical pages")
	}

	swapped := sampleForm()
	swapped.Set("Hardness", "20000")
	swapped.Set("Solids", "200")
	body := postForm(mux, swapped, "").Body.String()
	if !strings.Contains(body, `class="result-box unsafe"`) || strings.Contains(body, "An error occurred") {
		t.Fatal("swapped features should be accepted and classified as not potable")
	}
}

func TestPredictAcceptsMultipartForm(t *testing.T) {
	artifacts, err := ml.LoadArtifacts(ml.ModelTypeKNN, "../ml/testdata/knn_water_model.json", "../ml/testdata/scaler_water.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	predictor, err := ml.NewPredictor(artifacts, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mux := newTestMux(t, predictor)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for name, values := range sampleForm() {
		if err := writer.WriteField(name, values[0]); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/predict", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	page := w.Body.String()
	if strings.Contains(page, "An error occurred") {
		t.Fatalf("multipart submission should parse, got %s", page)
	}
	if !strings.Contains(page, `class="result-box safe"`) {
		t.Fatal("expected potable verdict")
	}
}

func TestPredictSanitizesErrorText(t *testing.T) {
	mux := newTestMux(t, &fakePredictor{err: errors.New(`<script>alert(1)</script>`)})
	body := postForm(mux, sampleForm(), "").Body.String()
	if strings.Contains(body, "<script>") {
		t.Fatal("error text must be escaped")
	}
}

func TestPredictIndonesian(t *testing.T) {
	mux := newTestMux(t, &fakePredictor{prediction: ml.Prediction{Label: 1, Potable: true}})
	w := postForm(mux, sampleForm(), "id-ID,id;q=0.9,en;q=0.5")
	body := w.Body.String()
	if !strings.Contains(body, "LAYAK MINUM") {
		t.Fatalf("expected Indonesian verdict, got %s", body)
	}
	if w.Header().Get("Content-Language") != "id" {
		t.Fatalf("unexpected content language %q", w.Header().Get("Content-Language"))
	}

	failing := newTestMux(t, &fakePredictor{err: errors.New("boom")})
	if body := postForm(failing, sampleForm(), "id").Body.String(); !strings.Contains(body, "Terjadi Kesalahan: boom") {
		t.Fatalf("expected Indonesian error, got %s", body)
	}
}

func TestPageExplainsEveryField(t *testing.T) {
	mux := newTestMux(t, &fakePredictor{})

	get := func(lang string) string {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Accept-Language", lang)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		return w.Body.String()
	}

	english := get("en")
	indonesianPage := get("id")
	if !strings.Contains(english, msgGuide) || !strings.Contains(indonesianPage, "Penjelasan Variabel") {
		t.Fatal("expected a localized variable guide heading")
	}
	for _, f := range fields {
		translated, ok := indonesian[f.explain]
		if !ok {
			t.Fatalf("no Indonesian explanation for %s", f.Name)
		}
		if !strings.Contains(english, f.explain) {
			t.Errorf("English guide missing %s", f.Name)
		}
		if !strings.Contains(indonesianPage, translated) {
			t.Errorf("Indonesian guide missing %s", f.Name)
		}
		if !strings.Contains(english, "<strong>"+f.Term+":</strong>") {
			t.Errorf("guide missing term %q", f.Term)
		}
	}
}

func TestDefaultLanguage(t *testing.T) {
	handler, err := NewHandler(&fakePredictor{}, "id")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mux := http.NewServeMux()
	handler.Register(mux)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if !strings.Contains(w.Body.String(), `<html lang="id">`) {
		t.Fatal("expected Indonesian page by default")
	}

	if _, err := NewHandler(&fakePredictor{}, "fr"); err == nil {
		t.Fatal("expected error for unsupported language")
	}
}

func TestPredictObservers(t *testing.T) {
	history := &fakeHistory{}
	feed := &fakeFeed{Handler: http.NotFoundHandler()}
	prediction := ml.Prediction{Features: ml.FeatureVector{7, 200}, Label: 1, Potable: true, Confidence: 0.8}
	mux := newTestMux(t, &fakePredictor{prediction: prediction}, WithHistory(history), WithFeed(feed), WithLogger(zap.NewNop()))

	postForm(mux, sampleForm(), "")
	if len(history.records) != 1 || history.records[0].Features["Hardness"] != 200 {
		t.Fatalf("unexpected history: %+v", history.records)
	}
	if len(feed.events) != 1 || !feed.events[0].Potable {
		t.Fatalf("unexpected feed events: %+v", feed.events)
	}

	failing := newTestMux(t, &fakePredictor{err: errors.New("boom")}, WithHistory(history), WithFeed(feed))
	postForm(failing, sampleForm(), "")
	if len(history.records) != 1 || len(feed.events) != 1 {
		t.Fatal("failed predictions must not be observed")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/history?limit=5", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	var payload struct {
		Count int         `json:"count"`
		Data  []db.Record `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.Count != 1 || !payload.Data[0].Potable {
		t.Fatalf("unexpected history payload: %+v", payload)
	}
}

func TestHistoryRouteDisabledByDefault(t *testing.T) {
	mux := newTestMux(t, &fakePredictor{})
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

package etasvc

import (
	"encoding/json"
	"fmt"
	logger "log"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	//inferenceSubject is the nats subject the model runner services
	inferenceSubject = "inference-request"
	//segmentModelName selects the travel time regression on the model runner
	segmentModelName = "segment-travel-time"
	//defaultInferenceTimeout bounds a single round trip to the model runner
	defaultInferenceTimeout = 5 * time.Second
)

//InferenceRequest holds the feature matrix for the model runner to service
type InferenceRequest struct {
	RequestId string      `json:"request_id"`
	ModelName string      `json:"model_name"`
	Features  [][]float64 `json:"features"`
	Timestamp int64       `json:"timestamp"`
}

//InferenceResponse holds the results of an InferenceRequest sent back from the model runner
type InferenceResponse struct {
	RequestId   string    `json:"request_id"`
	Predictions []float64 `json:"predictions"`
	Error       string    `json:"error"`
	Timestamp   int64     `json:"timestamp"`
}

//natsSegmentPredictor sends feature matrices to the model runner over nats
//request/reply and returns predicted segment travel times in seconds
type natsSegmentPredictor struct {
	log      *logger.Logger
	natsConn *nats.Conn
	timeout  time.Duration
}

func makeNatsSegmentPredictor(log *logger.Logger, natsConn *nats.Conn) *natsSegmentPredictor {
	return &natsSegmentPredictor{
		log:      log,
		natsConn: natsConn,
		timeout:  defaultInferenceTimeout,
	}
}

//PredictSegments implements SegmentPredictor over nats
func (p *natsSegmentPredictor) PredictSegments(features [][]float64) ([]float64, error) {
	request := InferenceRequest{
		RequestId: uuid.NewString(),
		ModelName: segmentModelName,
		Features:  features,
		Timestamp: time.Now().Unix(),
	}
	payload, err := json.Marshal(&request)
	if err != nil {
		return nil, fmt.Errorf("unable to marshal InferenceRequest %s: %w", request.RequestId, err)
	}

	msg, err := p.natsConn.Request(inferenceSubject, payload, p.timeout)
	if err != nil {
		return nil, fmt.Errorf("inference request %s failed: %w", request.RequestId, err)
	}

	response := InferenceResponse{}
	err = json.Unmarshal(msg.Data, &response)
	if err != nil {
		return nil, fmt.Errorf("error parsing InferenceResponse for request %s: %w", request.RequestId, err)
	}
	if response.RequestId != request.RequestId {
		return nil, fmt.Errorf("InferenceResponse request_id %s does not match request %s",
			response.RequestId, request.RequestId)
	}
	if len(response.Error) > 0 {
		return nil, fmt.Errorf("model runner rejected request %s: %s", request.RequestId, response.Error)
	}
	if len(response.Predictions) != len(features) {
		return nil, fmt.Errorf("InferenceResponse %s returned %d predictions for %d feature rows",
			request.RequestId, len(response.Predictions), len(features))
	}
	return response.Predictions, nil
}

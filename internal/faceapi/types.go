package faceapi

import (
	"person-id-backend/internal/ids"
)

type QualityTier string

const (
	QualityUnknown QualityTier = ""
	QualityHigh    QualityTier = "high"
	QualityMedium  QualityTier = "medium"
	QualityLow     QualityTier = "low"
)

type Rectangle struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type DetectedFace struct {
	Id        ids.FaceId
	Rectangle Rectangle
	Quality   QualityTier
}

type TrainingState string

const (
	TrainingNotStarted TrainingState = "notstarted"
	TrainingRunning    TrainingState = "running"
	TrainingSucceeded  TrainingState = "succeeded"
	TrainingFailed     TrainingState = "failed"
)

func (s TrainingState) IsTerminal() bool {
	return s == TrainingSucceeded || s == TrainingFailed
}

type TrainingStatus struct {
	Status  TrainingState `json:"status"`
	Message string        `json:"message,omitempty"`
}

type Person struct {
	PersonId         ids.PersonId `json:"personId"`
	Name             string       `json:"name"`
	UserData         string       `json:"userData,omitempty"`
	PersistedFaceIds []ids.FaceId `json:"persistedFaceIds"`
}

type Candidate struct {
	PersonId   ids.PersonId `json:"personId"`
	Confidence float64      `json:"confidence"`
}

type IdentifyResult struct {
	FaceId     ids.FaceId  `json:"faceId"`
	Candidates []Candidate `json:"candidates"`
}

type VerifyResult struct {
	IsMatch    bool    `json:"isIdentical"`
	Confidence float64 `json:"confidence"`
}

// Wire formats that differ from the values handed to callers.

type detectedFaceResponse struct {
	FaceId         ids.FaceId `json:"faceId"`
	FaceRectangle  Rectangle  `json:"faceRectangle"`
	FaceAttributes *struct {
		QualityForRecognition QualityTier `json:"qualityForRecognition"`
	} `json:"faceAttributes,omitempty"`
}

type createGroupRequest struct {
	Name             string `json:"name"`
	RecognitionModel string `json:"recognitionModel"`
}

type createPersonRequest struct {
	Name string `json:"name"`
}

type createPersonResponse struct {
	PersonId ids.PersonId `json:"personId"`
}

type addFaceResponse struct {
	PersistedFaceId ids.FaceId `json:"persistedFaceId"`
}

type identifyRequest struct {
	FaceIds                    []ids.FaceId `json:"faceIds"`
	PersonGroupId              ids.GroupId  `json:"personGroupId"`
	MaxNumOfCandidatesReturned int          `json:"maxNumOfCandidatesReturned"`
}

type verifyRequest struct {
	FaceId        ids.FaceId   `json:"faceId"`
	PersonId      ids.PersonId `json:"personId"`
	PersonGroupId ids.GroupId  `json:"personGroupId"`
}

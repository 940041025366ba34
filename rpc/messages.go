package rpc

type Position struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

type DetectRequest struct {
	Profile  string `json:"profile"`
	ImgData  []byte `json:"imgData"`
	Annotate bool   `json:"annotate,omitempty"`
}

type SingleResult struct {
	Name       string      `json:"name"`
	ClassId    int32       `json:"classId"`
	Confidence float32     `json:"confidence"`
	Box        []*Position `json:"box"` // LT, RT, RB, LB
	Center     *Position   `json:"center"`
}

type DetectResponse struct {
	Success   bool            `json:"success"`
	Id        string          `json:"id"`
	Profile   string          `json:"profile"`
	Width     int32           `json:"width"`
	Height    int32           `json:"height"`
	Results   []*SingleResult `json:"results"`
	Annotated []byte          `json:"annotated,omitempty"`
}

type ProfileInfo struct {
	NetName            string  `json:"netname"`
	ConfThreshold      float32 `json:"confThreshold"`
	NmsThreshold       float32 `json:"nmsThreshold"`
	InpWidth           int32   `json:"inpWidth"`
	InpHeight          int32   `json:"inpHeight"`
	ModelConfiguration string  `json:"modelConfiguration"`
	ModelWeights       string  `json:"modelWeights"`
	ClassesFile        string  `json:"classesFile"`
	Served             bool    `json:"served"`
}

type ListProfilesResponse struct {
	Profiles []*ProfileInfo `json:"profiles"`
}

type CheckEngineRequest struct {
	Profile string `json:"profile"`
}

type EngineInfo struct {
	NetName            string   `json:"netname"`
	ModelConfiguration string   `json:"modelConfiguration"`
	ModelWeights       string   `json:"modelWeights"`
	Names              []string `json:"names"`
	Confidence         float32  `json:"confidence"`
	Nms                float32  `json:"nms"`
	InpWidth           int32    `json:"inpWidth"`
	InpHeight          int32    `json:"inpHeight"`
	Backend            string   `json:"backend"`
	Target             string   `json:"target"`
	Letterbox          bool     `json:"letterbox"`
}

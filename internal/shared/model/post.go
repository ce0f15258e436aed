package model

// Post 演示用帖子，与付款业务无关
type Post struct {
	ID      string `json:"_id" bson:"_id"`
	User    string `json:"user" bson:"user"`
	Content string `json:"content" bson:"content"`
	Image   string `json:"image" bson:"image"`
}

package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	lark "github.com/larksuite/oapi-sdk-go/v3"
	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	"github.com/larksuite/oapi-sdk-go/v3/event/dispatcher"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	larkws "github.com/larksuite/oapi-sdk-go/v3/ws"
	"go.uber.org/zap"
)

// Resource is a file attached to a message
type Resource struct {
	Type     string // image, file, audio
	Key      string
	FileName string
}

// Message represents a received or fetched Feishu message
type Message struct {
	ChatID    string
	MsgID     string
	ParentID  string // Message this one replies to
	MsgType   string // text, post, image, file, audio
	SenderID  string
	IsBot     bool
	Content   string
	Resources []Resource
}

// MessageHandler is the callback for received messages
type MessageHandler func(msg *Message)

// Client is the Feishu API client
type Client struct {
	appID     string
	appSecret string
	larkCli   *lark.Client
	wsCli     *larkws.Client
	onMessage MessageHandler
	logger    *zap.Logger
	httpCli   *http.Client
}

// NewClient creates a new Feishu client
func NewClient(appID, appSecret string, logger *zap.Logger) *Client {
	return &Client{
		appID:     appID,
		appSecret: appSecret,
		larkCli:   lark.NewClient(appID, appSecret),
		logger:    logger.Named("feishu"),
		httpCli:   http.DefaultClient,
	}
}

// OnMessage sets the message handler
func (c *Client) OnMessage(handler MessageHandler) {
	c.onMessage = handler
}

// Start connects via WebSocket and blocks until ctx is done or the connection fails
func (c *Client) Start(ctx context.Context) error {
	// The handler must return quickly so the SDK can ACK; otherwise Feishu redelivers
	eventHandler := dispatcher.NewEventDispatcher("", "").
		OnP2MessageReceiveV1(func(ctx context.Context, event *larkim.P2MessageReceiveV1) error {
			go c.handleEvent(event)
			return nil
		})

	c.wsCli = larkws.NewClient(c.appID, c.appSecret,
		larkws.WithEventHandler(eventHandler),
		larkws.WithLogLevel(larkcore.LogLevelInfo),
	)

	c.logger.Info("starting websocket connection")
	return c.wsCli.Start(ctx)
}

// handleEvent converts a receive event and hands it to the handler
func (c *Client) handleEvent(event *larkim.P2MessageReceiveV1) {
	if event.Event == nil || event.Event.Message == nil {
		return
	}
	raw := event.Event.Message

	msg := &Message{
		ChatID:   deref(raw.ChatId),
		MsgID:    deref(raw.MessageId),
		ParentID: deref(raw.ParentId),
		MsgType:  deref(raw.MessageType),
	}

	if sender := event.Event.Sender; sender != nil {
		if sender.SenderId != nil {
			msg.SenderID = deref(sender.SenderId.OpenId)
		}
		// Messages sent by apps, including this bot, are ignored
		if deref(sender.SenderType) == "app" {
			return
		}
	}

	mentions := make(map[string]string)
	for _, m := range raw.Mentions {
		if m.Key != nil && m.Name != nil {
			mentions[*m.Key] = *m.Name
		}
	}

	if !parseContent(msg, deref(raw.Content), mentions) {
		c.logger.Debug("unsupported message type", zap.String("type", msg.MsgType))
		return
	}

	if c.onMessage != nil {
		c.onMessage(msg)
	}
}

// GetMessage fetches a message by id, used to resolve replied-to messages
func (c *Client) GetMessage(ctx context.Context, msgID string) (*Message, error) {
	req := larkim.NewGetMessageReqBuilder().MessageId(msgID).Build()
	resp, err := c.larkCli.Im.Message.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get message failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get message error: %s", resp.Msg)
	}
	if resp.Data == nil || len(resp.Data.Items) == 0 {
		return nil, fmt.Errorf("message %s not found", msgID)
	}

	item := resp.Data.Items[0]
	msg := &Message{
		ChatID:  deref(item.ChatId),
		MsgID:   deref(item.MessageId),
		MsgType: deref(item.MsgType),
	}
	if item.Sender != nil {
		msg.SenderID = deref(item.Sender.Id)
		msg.IsBot = deref(item.Sender.SenderType) == "app"
	}
	if item.Body != nil {
		parseContent(msg, deref(item.Body.Content), nil)
	}
	return msg, nil
}

// MemberName resolves a user's display name within a chat
func (c *Client) MemberName(ctx context.Context, chatID, openID string) (string, error) {
	var pageToken string
	for {
		builder := larkim.NewGetChatMembersReqBuilder().
			MemberIdType("open_id").
			ChatId(chatID).
			PageSize(100)
		if pageToken != "" {
			builder = builder.PageToken(pageToken)
		}

		resp, err := c.larkCli.Im.ChatMembers.Get(ctx, builder.Build())
		if err != nil {
			return "", fmt.Errorf("get chat members failed: %w", err)
		}
		if !resp.Success() {
			return "", fmt.Errorf("get chat members error: %s", resp.Msg)
		}

		for _, item := range resp.Data.Items {
			if deref(item.MemberId) == openID {
				return deref(item.Name), nil
			}
		}

		if resp.Data.PageToken == nil || *resp.Data.PageToken == "" {
			return "", nil
		}
		pageToken = *resp.Data.PageToken
	}
}

// ReceiveIDType picks the receive_id_type matching the shape of id.
// Users are addressed by open_id (ou_) or union_id (on_); anything else is a chat.
func ReceiveIDType(id string) string {
	switch {
	case strings.HasPrefix(id, "ou_"):
		return larkim.ReceiveIdTypeOpenId
	case strings.HasPrefix(id, "on_"):
		return larkim.ReceiveIdTypeUnionId
	default:
		return larkim.ReceiveIdTypeChatId
	}
}

// SendText sends a plain text message to a chat or user
func (c *Client) SendText(ctx context.Context, receiveIDType, receiveID, text string) error {
	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDType).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(receiveID).
			MsgType(larkim.MsgTypeText).
			Content(textContent(text)).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("send message failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("send message error: %s", resp.Msg)
	}
	return nil
}

// ReplyText replies to a message; markdown is sent as a post and falls back to text
func (c *Client) ReplyText(ctx context.Context, msgID, text string, markdown bool) error {
	if markdown {
		err := c.reply(ctx, msgID, larkim.MsgTypePost, markdownContent(text))
		if err == nil {
			return nil
		}
		c.logger.Debug("markdown reply rejected, sending plain", zap.Error(err))
	}
	return c.reply(ctx, msgID, larkim.MsgTypeText, textContent(text))
}

// ReplyImageURL downloads an image, uploads it to Feishu and replies with it
func (c *Client) ReplyImageURL(ctx context.Context, msgID, url string) error {
	data, err := c.fetch(ctx, url)
	if err != nil {
		return err
	}

	req := larkim.NewCreateImageReqBuilder().
		Body(larkim.NewCreateImageReqBodyBuilder().
			ImageType(larkim.ImageTypeMessage).
			Image(bytes.NewReader(data)).
			Build()).
		Build()
	resp, err := c.larkCli.Im.Image.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("upload image failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("upload image error: %s", resp.Msg)
	}

	content, _ := json.Marshal(map[string]string{"image_key": deref(resp.Data.ImageKey)})
	return c.reply(ctx, msgID, larkim.MsgTypeImage, string(content))
}

// ReplyFile uploads a file and replies with it
func (c *Client) ReplyFile(ctx context.Context, msgID, name string, r io.Reader) error {
	req := larkim.NewCreateFileReqBuilder().
		Body(larkim.NewCreateFileReqBodyBuilder().
			FileType(larkim.FileTypeStream).
			FileName(name).
			File(r).
			Build()).
		Build()
	resp, err := c.larkCli.Im.File.Create(ctx, req)
	if err != nil {
		return fmt.Errorf("upload file failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("upload file error: %s", resp.Msg)
	}

	content, _ := json.Marshal(map[string]string{"file_key": deref(resp.Data.FileKey)})
	return c.reply(ctx, msgID, larkim.MsgTypeFile, string(content))
}

// Download fetches a message resource
func (c *Client) Download(ctx context.Context, msgID string, res Resource) ([]byte, error) {
	kind := "file"
	if res.Type == "image" {
		kind = "image"
	}
	req := larkim.NewGetMessageResourceReqBuilder().
		MessageId(msgID).
		FileKey(res.Key).
		Type(kind).
		Build()

	resp, err := c.larkCli.Im.MessageResource.Get(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get resource failed: %w", err)
	}
	if !resp.Success() {
		return nil, fmt.Errorf("get resource error: %s", resp.Msg)
	}
	return io.ReadAll(resp.File)
}

func (c *Client) reply(ctx context.Context, msgID, msgType, content string) error {
	req := larkim.NewReplyMessageReqBuilder().
		MessageId(msgID).
		Body(larkim.NewReplyMessageReqBodyBuilder().
			MsgType(msgType).
			Content(content).
			Build()).
		Build()

	resp, err := c.larkCli.Im.Message.Reply(ctx, req)
	if err != nil {
		return fmt.Errorf("reply failed: %w", err)
	}
	if !resp.Success() {
		return fmt.Errorf("reply error: %s", resp.Msg)
	}
	return nil
}

func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// parseContent fills Content and Resources from the JSON body; false for unsupported types
func parseContent(msg *Message, content string, mentions map[string]string) bool {
	switch msg.MsgType {
	case "text":
		var parsed struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(content), &parsed); err != nil {
			return false
		}
		msg.Content = replaceMentions(parsed.Text, mentions)
	case "post":
		msg.Content, msg.Resources = parsePost(content, mentions)
	case "image":
		var parsed struct {
			ImageKey string `json:"image_key"`
		}
		if err := json.Unmarshal([]byte(content), &parsed); err != nil || parsed.ImageKey == "" {
			return false
		}
		msg.Resources = []Resource{{Type: "image", Key: parsed.ImageKey}}
	case "file", "audio":
		var parsed struct {
			FileKey  string `json:"file_key"`
			FileName string `json:"file_name"`
		}
		if err := json.Unmarshal([]byte(content), &parsed); err != nil || parsed.FileKey == "" {
			return false
		}
		msg.Resources = []Resource{{Type: msg.MsgType, Key: parsed.FileKey, FileName: parsed.FileName}}
	default:
		return false
	}
	return true
}

// parsePost extracts text and images from a rich text message
func parsePost(content string, mentions map[string]string) (string, []Resource) {
	var parsed struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag      string `json:"tag"`
			Text     string `json:"text,omitempty"`
			ImageKey string `json:"image_key,omitempty"`
			UserID   string `json:"user_id,omitempty"`
		} `json:"content"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return "", nil
	}

	var lines []string
	var resources []Resource
	if parsed.Title != "" {
		lines = append(lines, parsed.Title)
	}
	for _, line := range parsed.Content {
		var b strings.Builder
		for _, elem := range line {
			switch elem.Tag {
			case "text", "md":
				b.WriteString(elem.Text)
			case "at":
				if name, ok := mentions[elem.UserID]; ok {
					b.WriteString("@" + name)
				} else if elem.UserID != "" {
					b.WriteString("@" + elem.UserID)
				}
			case "img":
				if elem.ImageKey != "" {
					resources = append(resources, Resource{Type: "image", Key: elem.ImageKey})
				}
			}
		}
		if b.Len() > 0 {
			lines = append(lines, b.String())
		}
	}
	return replaceMentions(strings.Join(lines, "\n"), mentions), resources
}

// replaceMentions replaces placeholders such as @_user_1 with real names
func replaceMentions(text string, mentions map[string]string) string {
	for key, name := range mentions {
		text = strings.ReplaceAll(text, key, "@"+name)
	}
	return text
}

func textContent(text string) string {
	content, _ := json.Marshal(map[string]string{"text": text})
	return string(content)
}

func markdownContent(text string) string {
	post := map[string]any{
		"zh_cn": map[string]any{
			"content": [][]map[string]string{{{"tag": "md", "text": text}}},
		},
	}
	content, _ := json.Marshal(post)
	return string(content)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package usecase

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/zapa-ai/zapa/archive"
	"github.com/zapa-ai/zapa/bridge"
	"github.com/zapa-ai/zapa/llmagent"
	"github.com/zapa-ai/zapa/models"
	"github.com/zapa-ai/zapa/pkg/crypto"
	"github.com/zapa-ai/zapa/repository"
)

// contextWindow is how many stored messages feed one agent run.
const contextWindow = 20

// AgentResponse is the outcome of one conversational turn.
type AgentResponse struct {
	Content      string            `json:"content"`
	Success      bool              `json:"success"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// AgentService orchestrates one turn: persist inbound, load config, build
// context, run the agent, persist and deliver the reply.
type AgentService struct {
	archive *archive.Service
	configs *repository.LLMConfigRepository
	users   *repository.UserRepository
	cipher  *crypto.Cipher

	// bridgeClient and systemSessionID deliver the reply over WhatsApp;
	// when bridgeClient is nil the reply is only archived.
	bridgeClient    *bridge.Client
	systemSessionID string
}

func NewAgentService(
	archiveSvc *archive.Service,
	configs *repository.LLMConfigRepository,
	users *repository.UserRepository,
	cipher *crypto.Cipher,
	bridgeClient *bridge.Client,
	systemSessionID string,
) *AgentService {
	return &AgentService{
		archive:         archiveSvc,
		configs:         configs,
		users:           users,
		cipher:          cipher,
		bridgeClient:    bridgeClient,
		systemSessionID: systemSessionID,
	}
}

// ProcessMessage runs one turn for the user. A returned error marks a
// retriable turn failure; the response always carries text for the user.
func (s *AgentService) ProcessMessage(ctx context.Context, userID uint, content string) (*AgentResponse, error) {
	turnID := uuid.NewString()
	failed := func(err error) (*AgentResponse, error) {
		return &AgentResponse{
			Content:      llmagent.Apology,
			Success:      false,
			ErrorMessage: err.Error(),
		}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return failed(err)
	}

	if _, err := s.archive.StoreMessage(ctx, userID, archive.MessageCreate{
		Direction: models.DirectionIncoming,
		Content:   &content,
	}); err != nil {
		return failed(fmt.Errorf("failed to store inbound message: %w", err))
	}

	cfg, err := s.configs.GetActive(ctx, userID)
	if err != nil {
		return failed(err)
	}

	history, err := s.buildContext(ctx, user)
	if err != nil {
		return failed(fmt.Errorf("failed to build conversation context: %w", err))
	}

	apiKey, err := s.cipher.Decrypt(cfg.APIKeyEncrypted)
	if err != nil {
		return failed(fmt.Errorf("LLM configuration corrupt: %w", err))
	}

	agent := llmagent.NewAgent(llmagent.Config{
		Name:         "whatsapp-assistant",
		Instructions: cfg.CustomInstructions(),
		Provider:     cfg.Provider,
		Model:        cfg.Model(),
		Temperature:  cfg.Temperature(),
		MaxTokens:    cfg.MaxTokens(),
		APIKey:       apiKey,
	}, llmagent.NewToolSet(s.archive, userID))

	reply := agent.ProcessMessage(ctx, content, history)

	outbound, err := s.archive.StoreMessage(ctx, userID, archive.MessageCreate{
		Direction: models.DirectionOutgoing,
		Content:   &reply,
	})
	if err != nil {
		return failed(fmt.Errorf("failed to store reply: %w", err))
	}

	if s.bridgeClient != nil {
		sent, err := s.bridgeClient.SendMessage(ctx, s.systemSessionID, user.PhoneNumber, reply, "")
		if err != nil {
			return failed(fmt.Errorf("failed to deliver reply: %w", err))
		}
		if _, err := s.archive.UpdateMessageStatus(ctx, sent.MessageID, sent.Status); err == nil {
			// The outbound row predates the bridge ack; attach the id.
			outbound.MediaMetadata["whatsapp_message_id"] = sent.MessageID
			_ = s.archive.DB().WithContext(ctx).Model(outbound).
				Update("media_metadata", outbound.MediaMetadata).Error
		}
	}

	logrus.WithFields(logrus.Fields{
		"turn_id":  turnID,
		"user_id":  userID,
		"provider": cfg.Provider,
		"model":    agent.Model(),
	}).Info("[AGENT] Turn completed")

	return &AgentResponse{
		Content: reply,
		Success: true,
		Metadata: map[string]string{
			"turn_id":  turnID,
			"provider": cfg.Provider,
			"model":    agent.Model(),
		},
	}, nil
}

// buildContext maps the last messages into chat history: system-direction
// messages dropped, chronological order, incoming as user turns.
func (s *AgentService) buildContext(ctx context.Context, user *models.User) ([]llmagent.HistoryEntry, error) {
	msgs, err := s.archive.GetRecentMessages(ctx, user.ID, contextWindow)
	if err != nil {
		return nil, err
	}

	history := make([]llmagent.HistoryEntry, 0, len(msgs))
	// Newest first from the archive; walk backwards for chronological order.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Content == nil {
			continue
		}
		switch m.Direction(user.PhoneNumber) {
		case models.DirectionIncoming:
			history = append(history, llmagent.HistoryEntry{Role: llmagent.RoleUser, Content: *m.Content})
		case models.DirectionOutgoing:
			history = append(history, llmagent.HistoryEntry{Role: llmagent.RoleAssistant, Content: *m.Content})
		}
	}
	return history, nil
}

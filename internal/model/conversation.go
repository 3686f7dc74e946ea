package model

type ConversationStatus string

const (
	ConversationStatusNotStarted ConversationStatus = "NOT_STARTED"
	ConversationStatusOpen       ConversationStatus = "OPEN"
	ConversationStatusClosed     ConversationStatus = "CLOSED"
)

const (
	AppCapabilitiesVersion = "248"
	AppPlatform            = "Web"

	ListConversationsLimit = 20
	ListEntriesLimit       = 50
)

type EntryType string

const (
	EntryTypeMessage                 EntryType = "Message"
	EntryTypeParticipantChanged      EntryType = "ParticipantChanged"
	EntryTypeRoutingResult           EntryType = "RoutingResult"
	EntryTypeDeliveryAcknowledgement EntryType = "DeliveryAcknowledgement"
	EntryTypeReadAcknowledgement     EntryType = "ReadAcknowledgement"
	EntryTypeTypingStartedIndicator  EntryType = "TypingStartedIndicator"
	EntryTypeTypingStoppedIndicator  EntryType = "TypingStoppedIndicator"
)

// SupportedEntryTypes lists the entry types the client advertises and ingests.
var SupportedEntryTypes = map[EntryType]bool{
	EntryTypeMessage:                 true,
	EntryTypeParticipantChanged:      true,
	EntryTypeRoutingResult:           true,
	EntryTypeDeliveryAcknowledgement: true,
	EntryTypeReadAcknowledgement:     true,
	EntryTypeTypingStartedIndicator:  true,
	EntryTypeTypingStoppedIndicator:  true,
}

type MessageType string

const (
	MessageTypeStaticContent MessageType = "StaticContentMessage"
	MessageTypeChoices       MessageType = "ChoicesMessage"
)

type FormatType string

const (
	FormatTypeText         FormatType = "Text"
	FormatTypeAttachments  FormatType = "Attachments"
	FormatTypeRichLink     FormatType = "RichLink"
	FormatTypeButtons      FormatType = "Buttons"
	FormatTypeQuickReplies FormatType = "QuickReplies"
)

type ParticipantRole string

const (
	ParticipantRoleEndUser    ParticipantRole = "EndUser"
	ParticipantRoleAgent      ParticipantRole = "Agent"
	ParticipantRoleChatbot    ParticipantRole = "Chatbot"
	ParticipantRoleSystem     ParticipantRole = "System"
	ParticipantRoleRouter     ParticipantRole = "Router"
	ParticipantRoleSupervisor ParticipantRole = "Supervisor"
)

type ParticipantOperation string

const (
	ParticipantOperationAdd    ParticipantOperation = "add"
	ParticipantOperationRemove ParticipantOperation = "remove"
)

type RoutingType string

const (
	RoutingTypeInitial  RoutingType = "Initial"
	RoutingTypeTransfer RoutingType = "Transfer"
)

type RoutingFailureType string

const (
	RoutingFailureNone            RoutingFailureType = "None"
	RoutingFailureUnknown         RoutingFailureType = "Unknown"
	RoutingFailureSubmissionError RoutingFailureType = "SubmissionError"
	RoutingFailureRoutingError    RoutingFailureType = "RoutingError"
)

// Named events published on the event router stream.
const (
	EventConversationMessage                 = "CONVERSATION_MESSAGE"
	EventConversationRoutingResult           = "CONVERSATION_ROUTING_RESULT"
	EventConversationParticipantChanged      = "CONVERSATION_PARTICIPANT_CHANGED"
	EventConversationTypingStartedIndicator  = "CONVERSATION_TYPING_STARTED_INDICATOR"
	EventConversationTypingStoppedIndicator  = "CONVERSATION_TYPING_STOPPED_INDICATOR"
	EventConversationDeliveryAcknowledgement = "CONVERSATION_DELIVERY_ACKNOWLEDGEMENT"
	EventConversationReadAcknowledgement     = "CONVERSATION_READ_ACKNOWLEDGEMENT"
	EventConversationCloseConversation       = "CONVERSATION_CLOSE_CONVERSATION"
)

// PrechatDisplayEverySession is the displayContext value that re-shows the
// pre-chat form whenever a new messaging session starts.
const PrechatDisplayEverySession = "Session"

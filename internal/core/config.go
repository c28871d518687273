package core

type AppConfig interface {
	GetRuntimePath() string
	GetDatabasePath() string
}

type PromptConfig interface {
	GetSystemPath() string
	GetIdentityPath() string
	GetUserProfilePath() string
}

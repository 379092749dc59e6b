package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// UpdateFields 描述一次归档更新：更新 ID、上游地址与鉴权模式。
func UpdateFields(updateID, archiveURL, authMode string) logrus.Fields {
	return logrus.Fields{
		"action":    "update",
		"update_id": updateID,
		"upstream":  archiveURL,
		"auth_mode": authMode,
	}
}

// LookupFields 描述一次页面查询的键。
func LookupFields(command, platform, language string) logrus.Fields {
	return logrus.Fields{
		"action":   "lookup",
		"command":  command,
		"platform": platform,
		"language": language,
	}
}

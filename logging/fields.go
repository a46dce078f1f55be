package logging

import "go.uber.org/zap"

// Common billing fields, so every component spells the keys the same way.

func Plugin(id string) zap.Field       { return zap.String("plugin", id) }
func Hook(name string) zap.Field       { return zap.String("hook", name) }
func Model(name string) zap.Field      { return zap.String("model", name) }
func Provider(id string) zap.Field     { return zap.String("provider", id) }
func Endpoint(name string) zap.Field   { return zap.String("endpoint", name) }
func Adapter(name string) zap.Field    { return zap.String("adapter", name) }
func Plugins(ids []string) zap.Field   { return zap.Strings("plugins", ids) }
func HandlerIndex(index int) zap.Field { return zap.Int("handler", index) }

package main

const (
	DEFAULT_CACHE_DIR    = "/tmp/jre-pkg"
	DEFAULT_TARGET_DIR   = "/data/runtime"
	DEFAULT_CONFIG_FILE  = "./jre-pkgs.yaml"
	DEFAULT_ARCH         = "amd64"
	DEFAULT_RELEASE_BASE = "https://github.com/adoptium/temurin"
	TARGET_ARCH_ENV_VAR  = "TARGETARCH"
	DEPLOY_DIR_PREFIX    = "jre-"
	DEPLOY_INDEX_FILE    = "index.json"
)

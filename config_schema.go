package main

const CONFIG_SCHEMA_ID = "inmemory://jre-pkgs.schema.json"

// every key of a package other than "version" is an architecture section. sha256 is not required
// here; BuildPackageSpecs demands it only for the architecture being deployed.
const CONFIG_SCHEMA = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "properties": {
    "cache_dir": {"type": "string", "minLength": 1},
    "target_dir": {"type": "string", "minLength": 1},
    "release_base": {"type": "string", "pattern": "^https?://"},
    "s3_endpoint": {"type": "string"},
    "packages": {
      "type": "object",
      "additionalProperties": {"$ref": "#/definitions/package"}
    }
  },
  "required": ["packages"],
  "additionalProperties": false,
  "definitions": {
    "package": {
      "type": "object",
      "properties": {
        "version": {"type": "string", "minLength": 1}
      },
      "additionalProperties": {"$ref": "#/definitions/arch"}
    },
    "arch": {
      "type": "object",
      "properties": {
        "url": {"type": "string", "minLength": 1},
        "sha256": {"type": "string", "pattern": "^[A-Fa-f0-9]{64}$"}
      },
      "additionalProperties": false
    }
  }
}`
